package agent

import (
	"encoding/json"

	"chat-widget/internal/domain"
)

// Kind discriminates how a Send call resolved.
type Kind string

const (
	KindUnconfigured       Kind = "unconfigured"
	KindSuccessWithActions Kind = "success_with_actions"
	KindSuccess            Kind = "success"
	KindHTTPError          Kind = "http_error"
	KindFormatError        Kind = "format_error"
	KindInvalidJSON        Kind = "invalid_json"
	KindTransportError     Kind = "transport_error"
	KindFailure            Kind = "failure"
)

// User-visible reply texts for every non-success outcome.
const (
	ReplyHTTPError      = "Sorry, there was an error communicating with the server. Please try again later."
	ReplyFormatError    = "Sorry, the server returned an unexpected response format."
	ReplyInvalidJSON    = "Sorry, the server returned an invalid response format."
	ReplyTransportError = "Sorry, I could not connect to the server. Please check your connection and try again."
	ReplyFailure        = "Sorry, something went wrong while processing your message."
	ReplyMissingText    = "I received a response, but it did not contain a reply."

	unconfiguredReplyFormat = "Agent is not configured. This is a mock reply to: %q"
)

// mockActions are offered after an action while the agent is unconfigured so
// the quick-action flow still has something to click next.
var mockActions = []domain.ActionItem{
	{ID: "mock1", Label: "Tell me more", ActionCode: "more_info"},
	{ID: "mock2", Label: "Start over", ActionCode: "start_over"},
}

// Result is the normalized outcome of one agent round-trip. ReplyText is
// always safe to show to the visitor; details stay in Diagnostic.
type Result struct {
	Kind       Kind
	ReplyText  string
	Actions    []domain.ActionItem
	Raw        json.RawMessage
	Diagnostic *Diagnostic
}

// Diagnostic carries the detail behind a failed round-trip.
type Diagnostic struct {
	StatusCode  int    `json:"statusCode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	BodyPreview string `json:"bodyPreview,omitempty"`
	Error       string `json:"error,omitempty"`
	ActionCode  string `json:"actionCode,omitempty"`
}

// Succeeded reports whether the agent produced a reply of its own.
func (r Result) Succeeded() bool {
	return r.Kind == KindSuccess || r.Kind == KindSuccessWithActions
}
