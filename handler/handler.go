package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-widget/internal/logging"
	"chat-widget/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerVisitorID     = "X-Visitor-Id"

	routeConversation = "/conversation"
	routeMessages     = "/conversation/messages"
	routeActions      = "/conversation/actions"

	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// Conversations hands out the initialized conversation of a visitor.
// *usecase.Registry satisfies it.
type Conversations interface {
	Get(ctx context.Context, visitorID string) (*usecase.Conversation, error)
}

type Handler struct {
	conversations Conversations
	log           *slog.Logger
}

type Option func(*Handler)

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

type actionRequest struct {
	ActionCode string `json:"actionCode"`
	Label      string `json:"label"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(conversations Conversations, opts ...Option) (*Handler, error) {
	if conversations == nil {
		return nil, errors.New("handler: conversations must not be nil")
	}
	h := &Handler{conversations: conversations, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "handler")
	return h, nil
}

// Handle serves the widget API from API Gateway proxy events.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = newUUID()
	}
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.FromContext(ctx, h.log)

	path := strings.TrimRight(event.Path, "/")
	method := strings.ToUpper(event.HTTPMethod)
	log.Debug("request received", "method", method, "path", path)

	var op func(context.Context, *usecase.Conversation, []byte) error
	switch path {
	case routeConversation:
		switch method {
		case http.MethodGet:
			// snapshot only
		case http.MethodDelete:
			op = clearConversation
		default:
			return h.errorResponse(correlationID, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method_not_allowed"), nil
		}
	case routeMessages:
		if method != http.MethodPost {
			return h.errorResponse(correlationID, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method_not_allowed"), nil
		}
		op = submitMessage
	case routeActions:
		if method != http.MethodPost {
			return h.errorResponse(correlationID, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method_not_allowed"), nil
		}
		op = submitAction
	default:
		return h.errorResponse(correlationID, http.StatusNotFound, codeNotFound, "unknown_route"), nil
	}

	body, err := requestBody(event)
	if err != nil {
		return h.errorResponse(correlationID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_body"), nil
	}

	conv, err := h.conversations.Get(ctx, headerValue(event.Headers, headerVisitorID))
	if err != nil {
		return h.useCaseError(ctx, correlationID, err), nil
	}
	if op != nil {
		if err := op(ctx, conv, body); err != nil {
			return h.useCaseError(ctx, correlationID, err), nil
		}
	}

	return h.jsonResponse(correlationID, http.StatusOK, conv.Snapshot()), nil
}

func submitMessage(ctx context.Context, conv *usecase.Conversation, body []byte) error {
	var req messageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	return conv.SubmitUserMessage(ctx, req.Text)
}

func submitAction(ctx context.Context, conv *usecase.Conversation, body []byte) error {
	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	return conv.SubmitAction(ctx, req.ActionCode, req.Label)
}

func clearConversation(ctx context.Context, conv *usecase.Conversation, _ []byte) error {
	return conv.ClearConversation(ctx)
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func (h *Handler) useCaseError(ctx context.Context, correlationID string, err error) events.APIGatewayProxyResponse {
	log := logging.FromContext(ctx, h.log)
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.Error("unexpected error", "err", err)
		return h.errorResponse(correlationID, http.StatusInternalServerError, string(usecase.ErrorInternal), "unexpected_error")
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		log.Info("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return h.errorResponse(correlationID, status, string(ucErr.Code), ucErr.Reason)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorBusy:
		return http.StatusConflict
	case usecase.ErrorNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) errorResponse(correlationID string, status int, code, reason string) events.APIGatewayProxyResponse {
	return h.jsonResponse(correlationID, status, errorResponse{Error: code, Reason: reason})
}

func (h *Handler) jsonResponse(correlationID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode response", "err", err, "correlation_id", correlationID)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","reason":"encode_error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newUUID = func() string {
	return uuid.NewString()
}
