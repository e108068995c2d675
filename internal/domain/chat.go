package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionItem is a quick action offered inline with a message. Label is
// serialized as "name"; remote agents that send "label" are accepted too, and
// a numeric id is kept as its decimal text.
type ActionItem struct {
	ID         string `json:"id"`
	Label      string `json:"name"`
	ActionCode string `json:"action"`
}

func (a *ActionItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID     json.RawMessage `json:"id"`
		Name   string          `json:"name"`
		Label  string          `json:"label"`
		Action string          `json:"action"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("domain: decode action item: %w", err)
	}
	id, err := actionID(raw.ID)
	if err != nil {
		return fmt.Errorf("domain: decode action item: %w", err)
	}
	label := raw.Name
	if label == "" {
		label = raw.Label
	}
	*a = ActionItem{ID: id, Label: label, ActionCode: raw.Action}
	return nil
}

// actionID accepts a string or a number. A missing or null id is empty.
func actionID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or a number: %w", err)
	}
	return n.String(), nil
}

// CloneActions returns a copy of items so callers never share backing arrays
// with the conversation log.
func CloneActions(items []ActionItem) []ActionItem {
	if items == nil {
		return nil
	}
	out := make([]ActionItem, len(items))
	copy(out, items)
	return out
}
