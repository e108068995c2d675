package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"chat-widget/internal/domain"
	"chat-widget/internal/usecase"
)

// renderer prints messages it has not printed yet. A log whose first message
// changed was reset and is printed again from the top.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
	firstID string
	busy    bool
	actions []domain.ActionItem
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) Render(st usecase.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(st.Messages) > 0 && st.Messages[0].ID != r.firstID {
		if r.printed > 0 {
			fmt.Fprintln(r.out, "--- conversation cleared ---")
		}
		r.printed = 0
		r.firstID = st.Messages[0].ID
	}
	if r.printed > len(st.Messages) {
		r.printed = 0
	}
	for _, m := range st.Messages[r.printed:] {
		r.printMessage(m)
		if len(m.Actions) > 0 {
			r.actions = domain.CloneActions(m.Actions)
		}
	}
	r.printed = len(st.Messages)

	if st.Busy && !r.busy {
		fmt.Fprintln(r.out, "  agent is typing...")
	}
	r.busy = st.Busy
}

// Action returns the n-th (1-based) action offered by the latest message that
// carried any.
func (r *renderer) Action(n int) (domain.ActionItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 1 || n > len(r.actions) {
		return domain.ActionItem{}, false
	}
	return r.actions[n-1], true
}

func (r *renderer) printMessage(m domain.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	fmt.Fprintf(r.out, "[%s] %s: %s\n", ts, senderLabel(m.Sender), m.Text)
	for i, a := range m.Actions {
		fmt.Fprintf(r.out, "    %d) %s\n", i+1, a.Label)
	}
}

func senderLabel(s domain.Sender) string {
	switch s {
	case domain.SenderUser:
		return "you"
	case domain.SenderAgent:
		return "agent"
	default:
		return strings.ToLower(string(s))
	}
}
