package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"chat-widget/internal/domain"
)

const (
	defaultAction   = "answer"
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 1 << 20
	maxPreviewBytes = 500
)

// sendRequest is the body posted to the agent webhook.
type sendRequest struct {
	Message string `json:"message"`
}

// replyPayload is the subset of the webhook response the widget reads.
type replyPayload struct {
	Reply   json.RawMessage `json:"reply"`
	Output  json.RawMessage `json:"output"`
	Actions json.RawMessage `json:"actions"`
}

// Endpoint locates the agent webhook. The zero value is the explicit
// unconfigured state.
type Endpoint struct {
	BaseURL string
	Path    string

	base *url.URL
}

// NewEndpoint validates baseURL and normalizes path. An empty baseURL yields
// an unconfigured endpoint rather than an error.
func NewEndpoint(baseURL, path string) (Endpoint, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return Endpoint{}, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("agent: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("agent: base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, errors.New("agent: base URL must include a host")
	}
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path != "" {
		path = "/" + path
	}
	return Endpoint{BaseURL: baseURL, Path: path, base: u}, nil
}

// Configured reports whether requests can be sent.
func (e Endpoint) Configured() bool {
	return e.base != nil
}

// URL returns the request URL for actionCode, defaulting to "answer".
func (e Endpoint) URL(actionCode string) string {
	if e.base == nil {
		return ""
	}
	u := *e.base
	u.Path = strings.TrimRight(u.Path, "/") + e.Path
	u.RawPath = ""
	if strings.TrimSpace(actionCode) == "" {
		actionCode = defaultAction
	}
	q := u.Query()
	q.Set("action", actionCode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Client sends visitor messages to the remote agent webhook.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a Client for endpoint. An unconfigured endpoint is
// allowed; Send then answers with a mock reply.
func NewClient(endpoint Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "agent_client")
	return c
}

// Endpoint returns the endpoint the client posts to.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Send posts message to the agent, routing by actionCode when set. The error
// is non-nil only when ctx is already done before the request goes out;
// every other outcome, failures included, is reported through Result.
func (c *Client) Send(ctx context.Context, message, actionCode string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("agent: send: %w", err)
	}
	if !c.endpoint.Configured() {
		return unconfiguredResult(message, actionCode), nil
	}

	res := c.roundTrip(ctx, message, actionCode)
	if !res.Succeeded() {
		c.logFailure(res)
	}
	return res, nil
}

func unconfiguredResult(message, actionCode string) Result {
	res := Result{
		Kind:      KindUnconfigured,
		ReplyText: fmt.Sprintf(unconfiguredReplyFormat, message),
		Diagnostic: &Diagnostic{
			Error:      "agent endpoint is not configured",
			ActionCode: actionCode,
		},
	}
	if actionCode != "" {
		res.Actions = domain.CloneActions(mockActions)
	}
	return res
}

func (c *Client) roundTrip(ctx context.Context, message, actionCode string) Result {
	body, err := json.Marshal(sendRequest{Message: message})
	if err != nil {
		return failureResult(err, actionCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL(actionCode), bytes.NewReader(body))
	if err != nil {
		return failureResult(err, actionCode)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return failureResult(err, actionCode)
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return failureResult(err, actionCode)
	}
	contentType := res.Header.Get("Content-Type")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Result{
			Kind:      KindHTTPError,
			ReplyText: ReplyHTTPError,
			Diagnostic: &Diagnostic{
				StatusCode:  res.StatusCode,
				ContentType: contentType,
				BodyPreview: preview(buf),
				ActionCode:  actionCode,
			},
		}
	}

	if !isJSON(contentType) {
		return Result{
			Kind:      KindFormatError,
			ReplyText: ReplyFormatError,
			Diagnostic: &Diagnostic{
				StatusCode:  res.StatusCode,
				ContentType: contentType,
				BodyPreview: preview(buf),
				ActionCode:  actionCode,
			},
		}
	}

	reply, err := parseReply(buf)
	if err != nil {
		return Result{
			Kind:      KindInvalidJSON,
			ReplyText: ReplyInvalidJSON,
			Diagnostic: &Diagnostic{
				StatusCode:  res.StatusCode,
				ContentType: contentType,
				BodyPreview: preview(buf),
				Error:       err.Error(),
				ActionCode:  actionCode,
			},
		}
	}

	if len(reply.dropped) > 0 {
		c.log.Warn("agent reply carried malformed actions",
			"dropped", len(reply.dropped),
			"errs", reply.dropped,
			"action", actionCode,
		)
	}

	kind := KindSuccess
	if len(reply.actions) > 0 {
		kind = KindSuccessWithActions
	}
	return Result{
		Kind:      kind,
		ReplyText: reply.text,
		Actions:   reply.actions,
		Raw:       json.RawMessage(buf),
	}
}

// parsedReply is what the widget keeps from a webhook body. dropped lists why
// each unusable action was skipped.
type parsedReply struct {
	text    string
	actions []domain.ActionItem
	dropped []string
}

// parseReply extracts the reply text (reply, then output, then a fixed
// fallback) and any follow-up actions. A top-level array is unwrapped to its
// first element. Only a body that is not JSON is an error; actions that do
// not decode are dropped one by one.
func parseReply(body []byte) (parsedReply, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return parsedReply{}, fmt.Errorf("agent: decode response: %w", err)
		}
		if len(list) == 0 {
			return parsedReply{text: ReplyMissingText}, nil
		}
		trimmed = list[0]
	}

	var payload replyPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return parsedReply{}, fmt.Errorf("agent: decode response: %w", err)
	}

	text, ok := stringField(payload.Reply)
	if !ok {
		text, ok = stringField(payload.Output)
	}
	if !ok {
		text = ReplyMissingText
	}

	actions, dropped := decodeActions(payload.Actions)
	return parsedReply{text: text, actions: actions, dropped: dropped}, nil
}

func decodeActions(raw json.RawMessage) ([]domain.ActionItem, []string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, []string{"actions is not an array"}
	}

	var (
		actions []domain.ActionItem
		dropped []string
	)
	for i, item := range items {
		var a domain.ActionItem
		if err := json.Unmarshal(item, &a); err != nil {
			dropped = append(dropped, fmt.Sprintf("actions[%d]: %v", i, err))
			continue
		}
		actions = append(actions, a)
	}
	return actions, dropped
}

func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func failureResult(err error, actionCode string) Result {
	kind, text := KindFailure, ReplyFailure
	if isNetworkError(err) {
		kind, text = KindTransportError, ReplyTransportError
	}
	return Result{
		Kind:      kind,
		ReplyText: text,
		Diagnostic: &Diagnostic{
			Error:      err.Error(),
			ActionCode: actionCode,
		},
	}
}

// isNetworkError reports failures to reach the host: DNS, dial, reset and
// transport timeouts.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func preview(buf []byte) string {
	if len(buf) <= maxPreviewBytes {
		return string(buf)
	}
	return string(buf[:maxPreviewBytes])
}

func (c *Client) logFailure(res Result) {
	attrs := []any{"kind", string(res.Kind)}
	if d := res.Diagnostic; d != nil {
		attrs = append(attrs,
			"status", d.StatusCode,
			"content_type", d.ContentType,
			"body_preview", d.BodyPreview,
			"err", d.Error,
			"action", d.ActionCode,
		)
	}
	c.log.Warn("agent request did not succeed", attrs...)
}
