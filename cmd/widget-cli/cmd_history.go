package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation",
	RunE:  runHistory,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the stored conversation and start over",
	RunE:  runClear,
}

func runHistory(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r := newRenderer(cmd.OutOrStdout())
	r.Render(s.conv.Snapshot())
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.conv.ClearConversation(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
	return nil
}
