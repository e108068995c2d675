package usecase

import (
	"context"
	"errors"
	"strings"
)

// Factory builds the conversation for a visitor. It must not block on I/O;
// Registry initializes the result itself.
type Factory func(visitorID string) (*Conversation, error)

// Registry hands out visitor conversations. Nothing is cached between calls:
// every Get hydrates a new Conversation from storage, so processes sharing a
// store always start from the stored log and its expiry is checked each time.
type Registry struct {
	factory Factory
}

func NewRegistry(factory Factory) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("usecase: conversation factory must not be nil")
	}
	return &Registry{factory: factory}, nil
}

// Get returns an initialized conversation for visitorID.
func (r *Registry) Get(ctx context.Context, visitorID string) (*Conversation, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, newError(ErrorInvalidInput, "missing_visitor_id", nil)
	}

	conv, err := r.factory(visitorID)
	if err != nil {
		return nil, newError(ErrorInternal, "conversation_create_error", err)
	}
	if conv == nil {
		return nil, newError(ErrorInternal, "conversation_create_error", errors.New("factory returned nil"))
	}
	conv.Initialize(ctx)
	return conv, nil
}
