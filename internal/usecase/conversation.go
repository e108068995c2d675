package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-widget/internal/domain"
	"chat-widget/internal/integrations/agent"
	"chat-widget/internal/logging"
)

// SessionPersister is the persistence side of a conversation. Save returns
// domain.ErrSessionChanged when another writer replaced the record since the
// last Load or Save; other failures are handled by the persister.
// *repository.SessionStore satisfies it.
type SessionPersister interface {
	Load(ctx context.Context) (domain.Session, bool)
	Save(ctx context.Context, session domain.Session) error
	Clear(ctx context.Context)
}

const (
	// DefaultPendingLease bounds how long a stored in-flight marker keeps
	// other readers busy if its writer never finishes.
	DefaultPendingLease = 30 * time.Second

	maxReplySaveAttempts = 3
)

// AgentSender forwards a visitor message to the remote agent.
// *agent.Client satisfies it.
type AgentSender interface {
	Send(ctx context.Context, message, actionCode string) (agent.Result, error)
}

// State is a point-in-time copy of a conversation.
type State struct {
	Messages    []domain.Message `json:"messages"`
	Initialized bool             `json:"initialized"`
	Busy        bool             `json:"busy"`
}

type listener struct {
	id int
	fn func(State)
}

// Conversation owns one visitor's message log. Only one agent request may be
// in flight at a time; submissions made meanwhile are rejected with BUSY. The
// in-flight marker is stored with the log, so conversations in other processes
// sharing the same record see it too.
type Conversation struct {
	store SessionPersister
	agent AgentSender
	now   func() time.Time
	log   *slog.Logger
	lease time.Duration

	initMu sync.Mutex

	mu          sync.Mutex
	messages    []domain.Message
	createdAt   int64
	initialized bool
	busy        bool
	// pendingUntil is the stored in-flight marker; ownLease is the value this
	// conversation wrote for its own request.
	pendingUntil int64
	ownLease     int64
	listeners   []listener
	nextID      int
}

type Option func(*Conversation)

func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Conversation) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPendingLease sets how long the stored in-flight marker stays valid.
func WithPendingLease(d time.Duration) Option {
	return func(c *Conversation) {
		if d > 0 {
			c.lease = d
		}
	}
}

func NewConversation(store SessionPersister, sender AgentSender, opts ...Option) (*Conversation, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: agent sender must not be nil")
	}
	c := &Conversation{
		store: store,
		agent: sender,
		now:   time.Now,
		log:   slog.Default(),
		lease: DefaultPendingLease,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "conversation")
	return c, nil
}

// Initialize hydrates the log from storage, or seeds the welcome message when
// nothing valid is stored. Later calls are no-ops.
func (c *Conversation) Initialize(ctx context.Context) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	done := c.initialized
	c.mu.Unlock()
	if done {
		return
	}

	session, found := c.store.Load(ctx)

	c.mu.Lock()
	if found {
		c.restoreLocked(session)
		logging.FromContext(ctx, c.log).Debug("conversation restored", "messages", len(session.Messages))
	} else {
		c.seedLocked()
		if err := c.saveLocked(ctx); errors.Is(err, domain.ErrSessionChanged) {
			// Someone else created the record first; theirs wins.
			if session, ok := c.store.Load(ctx); ok {
				c.restoreLocked(session)
			}
		}
	}
	c.initialized = true
	c.mu.Unlock()

	c.notify()
}

// SubmitUserMessage appends the visitor's text and the agent's reply.
func (c *Conversation) SubmitUserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return newError(ErrorInvalidInput, "empty_message", nil)
	}
	return c.submit(ctx, text, text, "", noticeMessageFailed)
}

// SubmitAction records the chosen quick action and forwards its label to the
// agent, routed by actionCode.
func (c *Conversation) SubmitAction(ctx context.Context, actionCode, label string) error {
	if strings.TrimSpace(actionCode) == "" {
		return newError(ErrorInvalidInput, "empty_action_code", nil)
	}
	if strings.TrimSpace(label) == "" {
		return newError(ErrorInvalidInput, "empty_action_label", nil)
	}
	return c.submit(ctx, "Selected: "+label, label, actionCode, noticeActionFailed)
}

func (c *Conversation) submit(ctx context.Context, display, message, actionCode, failureNotice string) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return newError(ErrorNotInitialized, "conversation_not_initialized", nil)
	}
	if c.busyLocked() {
		c.mu.Unlock()
		return newError(ErrorBusy, "request_in_flight", nil)
	}
	now := c.now()
	user := domain.Message{
		ID:        newUUID(),
		Text:      display,
		Sender:    domain.SenderUser,
		Timestamp: now.UnixMilli(),
	}
	lease := now.Add(c.lease).UnixMilli()
	next := domain.Session{
		Messages:     append(cloneMessages(c.messages), user),
		CreatedAt:    c.createdAt,
		PendingUntil: lease,
	}
	if err := c.store.Save(ctx, next); errors.Is(err, domain.ErrSessionChanged) {
		c.reloadLocked(ctx)
		c.mu.Unlock()
		c.notify()
		return newError(ErrorBusy, "conversation_changed", err)
	}
	c.messages = next.Messages
	c.pendingUntil = lease
	c.ownLease = lease
	c.busy = true
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
		c.notify()
	}()

	res, err := c.agent.Send(ctx, message, actionCode)

	reply := domain.Message{ID: newUUID(), Timestamp: c.now().UnixMilli()}
	if err != nil {
		logging.FromContext(ctx, c.log).Error("agent send failed", "err", err, "action", actionCode)
		reply.Text = failureNotice
		reply.Sender = domain.SenderSystem
	} else {
		reply.Text = res.ReplyText
		reply.Sender = domain.SenderAgent
		reply.Actions = domain.CloneActions(res.Actions)
	}

	c.mu.Lock()
	c.finishLocked(ctx, reply)
	c.mu.Unlock()
	return nil
}

// finishLocked appends the reply and releases the stored in-flight marker. If
// another writer changed the record meanwhile, the reply is appended to their
// log instead.
func (c *Conversation) finishLocked(ctx context.Context, reply domain.Message) {
	c.appendLocked(reply)
	c.releaseLeaseLocked()

	for attempt := 1; ; attempt++ {
		err := c.saveLocked(ctx)
		if !errors.Is(err, domain.ErrSessionChanged) {
			break
		}
		if attempt == maxReplySaveAttempts {
			logging.FromContext(ctx, c.log).Error("reply not persisted, session keeps changing", "attempts", attempt)
			break
		}
		if session, ok := c.store.Load(ctx); ok {
			c.restoreLocked(session)
		} else {
			c.seedLocked()
		}
		c.appendLocked(reply)
		c.releaseLeaseLocked()
	}
	c.ownLease = 0
}

// ClearConversation drops the stored record and starts over with a fresh
// welcome message. An in-flight reply lands in the new log.
func (c *Conversation) ClearConversation(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return newError(ErrorNotInitialized, "conversation_not_initialized", nil)
	}
	if c.pendingUntil <= c.now().UnixMilli() {
		c.pendingUntil = 0
	}
	c.store.Clear(ctx)
	c.seedLocked()
	if err := c.saveLocked(ctx); errors.Is(err, domain.ErrSessionChanged) {
		// Written between the delete and the save; the reset still wins.
		c.store.Clear(ctx)
		if err := c.saveLocked(ctx); err != nil {
			logging.FromContext(ctx, c.log).Error("reset not persisted", "err", err)
		}
	}
	c.mu.Unlock()

	logging.FromContext(ctx, c.log).Info("conversation cleared")
	c.notify()
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn to be called with the new state after every change.
// Listeners run outside the conversation lock, in registration order.
func (c *Conversation) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Conversation) notify() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	state := c.stateLocked()
	fns := make([]func(State), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (c *Conversation) appendLocked(m domain.Message) {
	c.messages = append(c.messages, m)
}

// saveLocked persists under c.mu so stored snapshots follow mutation order.
func (c *Conversation) saveLocked(ctx context.Context) error {
	return c.store.Save(ctx, domain.Session{
		Messages:     cloneMessages(c.messages),
		CreatedAt:    c.createdAt,
		PendingUntil: c.pendingUntil,
	})
}

func (c *Conversation) restoreLocked(session domain.Session) {
	c.messages = session.Messages
	c.createdAt = session.CreatedAt
	c.pendingUntil = session.PendingUntil
}

func (c *Conversation) seedLocked() {
	seed := welcomeMessage(newUUID(), c.now().UnixMilli())
	c.messages = []domain.Message{seed}
	c.createdAt = seed.Timestamp
}

// reloadLocked replaces the local log with the stored one, seeding a new log
// when nothing valid is stored anymore.
func (c *Conversation) reloadLocked(ctx context.Context) {
	if session, ok := c.store.Load(ctx); ok {
		c.restoreLocked(session)
		return
	}
	c.seedLocked()
	c.pendingUntil = 0
	if err := c.saveLocked(ctx); err != nil {
		logging.FromContext(ctx, c.log).Warn("reseeded log not persisted", "err", err)
	}
}

// releaseLeaseLocked drops the in-flight marker if it is still the one this
// conversation wrote.
func (c *Conversation) releaseLeaseLocked() {
	if c.ownLease != 0 && c.pendingUntil == c.ownLease {
		c.pendingUntil = 0
	}
}

// busyLocked reports a local request in flight or a live stored marker.
func (c *Conversation) busyLocked() bool {
	return c.busy || c.pendingUntil > c.now().UnixMilli()
}

func (c *Conversation) stateLocked() State {
	return State{
		Messages:    cloneMessages(c.messages),
		Initialized: c.initialized,
		Busy:        c.busyLocked(),
	}
}

func cloneMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	for i, m := range in {
		m.Actions = domain.CloneActions(m.Actions)
		out[i] = m
	}
	return out
}

var newUUID = func() string {
	return uuid.NewString()
}
