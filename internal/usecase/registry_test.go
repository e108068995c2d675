package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/domain"
	"chat-widget/internal/integrations/agent"
	"chat-widget/internal/repository"
)

// memoryFactory builds conversations over kv the way the Lambda entry point
// does, recording every visitor it was asked for.
func memoryFactory(t *testing.T, kv repository.KeyValueStore, sender AgentSender, clock *fakeClock, created *[]string) Factory {
	t.Helper()
	var mu sync.Mutex
	return func(visitorID string) (*Conversation, error) {
		mu.Lock()
		*created = append(*created, visitorID)
		mu.Unlock()
		store, err := repository.NewSessionStore(kv, testKey+":"+visitorID, repository.WithClock(clock.Now))
		if err != nil {
			return nil, err
		}
		return NewConversation(store, sender, WithClock(clock.Now))
	}
}

func TestNewRegistry_NilFactory(t *testing.T) {
	_, err := NewRegistry(nil)
	require.ErrorContains(t, err, "factory")
}

func TestRegistry_GetHydratesEveryCall(t *testing.T) {
	var created []string
	kv := repository.NewMemoryStore()
	reg, err := NewRegistry(memoryFactory(t, kv, agent.NewClient(agent.Endpoint{}), newFakeClock(), &created))
	require.NoError(t, err)

	a1, err := reg.Get(context.Background(), "visitor-a")
	require.NoError(t, err)
	require.True(t, a1.Snapshot().Initialized)
	require.NoError(t, a1.SubmitUserMessage(context.Background(), "hello"))

	a2, err := reg.Get(context.Background(), " visitor-a ")
	require.NoError(t, err)
	require.NotSame(t, a1, a2)
	require.Equal(t, a1.Snapshot().Messages, a2.Snapshot().Messages)

	b, err := reg.Get(context.Background(), "visitor-b")
	require.NoError(t, err)
	require.Len(t, b.Snapshot().Messages, 1)

	require.Equal(t, []string{"visitor-a", "visitor-a", "visitor-b"}, created)
	_, found, err := kv.Get(context.Background(), testKey+":visitor-a")
	require.NoError(t, err)
	require.True(t, found)
}

func TestRegistry_SharedStoreKeepsEveryTurn(t *testing.T) {
	var created []string
	kv := repository.NewMemoryStore()
	clock := newFakeClock()
	sender := &fakeAgent{echo: true}
	regA, err := NewRegistry(memoryFactory(t, kv, sender, clock, &created))
	require.NoError(t, err)
	regB, err := NewRegistry(memoryFactory(t, kv, sender, clock, &created))
	require.NoError(t, err)

	convA, err := regA.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.NoError(t, convA.SubmitUserMessage(context.Background(), "first"))

	convB, err := regB.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.NoError(t, convB.SubmitUserMessage(context.Background(), "second"))

	again, err := regA.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.Equal(t, []turn{
		{sender: domain.SenderSystem, text: welcomeText},
		{sender: domain.SenderUser, text: "first"},
		{sender: domain.SenderAgent, text: "echo: first"},
		{sender: domain.SenderUser, text: "second"},
		{sender: domain.SenderAgent, text: "echo: second"},
	}, turns(again.Snapshot().Messages))
}

func TestRegistry_InFlightOnOtherInstanceIsBusy(t *testing.T) {
	var created []string
	kv := repository.NewMemoryStore()
	clock := newFakeClock()
	slow := &fakeAgent{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	regA, err := NewRegistry(memoryFactory(t, kv, slow, clock, &created))
	require.NoError(t, err)
	idle := &fakeAgent{}
	regB, err := NewRegistry(memoryFactory(t, kv, idle, clock, &created))
	require.NoError(t, err)

	convA, err := regA.Get(context.Background(), "visitor")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- convA.SubmitUserMessage(context.Background(), "first") }()
	<-slow.started

	convB, err := regB.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.True(t, convB.Snapshot().Busy)
	requireCode(t, convB.SubmitUserMessage(context.Background(), "second"), ErrorBusy)
	require.Empty(t, idle.calls())

	close(slow.gate)
	require.NoError(t, <-done)

	convB, err = regB.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.False(t, convB.Snapshot().Busy)
	require.NoError(t, convB.SubmitUserMessage(context.Background(), "second"))
	require.Len(t, convB.Snapshot().Messages, 5)
}

func TestRegistry_ExpiryCheckedOnEveryGet(t *testing.T) {
	var created []string
	clock := newFakeClock()
	reg, err := NewRegistry(memoryFactory(t, repository.NewMemoryStore(), &fakeAgent{}, clock, &created))
	require.NoError(t, err)

	conv, err := reg.Get(context.Background(), "visitor")
	require.NoError(t, err)
	require.NoError(t, conv.SubmitUserMessage(context.Background(), "hello"))

	clock.Advance(repository.DefaultSessionTTL)
	conv, err = reg.Get(context.Background(), "visitor")
	require.NoError(t, err)
	st := conv.Snapshot()
	require.Len(t, st.Messages, 1)
	require.Equal(t, welcomeText, st.Messages[0].Text)
	require.Equal(t, clock.Now().UnixMilli(), st.Messages[0].Timestamp)
}

func TestRegistry_ConcurrentFirstGetSharesOneLog(t *testing.T) {
	var created []string
	reg, err := NewRegistry(memoryFactory(t, repository.NewMemoryStore(), &fakeAgent{}, newFakeClock(), &created))
	require.NoError(t, err)

	var wg sync.WaitGroup
	convs := make([]*Conversation, 8)
	errs := make([]error, len(convs))
	for i := range convs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs[i], errs[i] = reg.Get(context.Background(), "visitor")
		}(i)
	}
	wg.Wait()

	for i, c := range convs {
		require.NoError(t, errs[i])
		require.Equal(t, convs[0].Snapshot().Messages, c.Snapshot().Messages)
	}
	require.Len(t, convs[0].Snapshot().Messages, 1)
	require.Len(t, created, len(convs))
}

func TestRegistry_Errors(t *testing.T) {
	reg, err := NewRegistry(func(string) (*Conversation, error) {
		return nil, errors.New("no backend")
	})
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "  ")
	requireCode(t, err, ErrorInvalidInput)

	_, err = reg.Get(context.Background(), "visitor")
	requireCode(t, err, ErrorInternal)
	require.ErrorContains(t, err, "no backend")

	nilReg, err := NewRegistry(func(string) (*Conversation, error) { return nil, nil })
	require.NoError(t, err)
	_, err = nilReg.Get(context.Background(), "visitor")
	requireCode(t, err, ErrorInternal)
}

func TestWithPendingLease(t *testing.T) {
	clock := newFakeClock()
	store, err := repository.NewSessionStore(repository.NewMemoryStore(), testKey, repository.WithClock(clock.Now))
	require.NoError(t, err)
	slow := &fakeAgent{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	conv, err := NewConversation(store, slow, WithClock(clock.Now), WithPendingLease(time.Minute))
	require.NoError(t, err)
	conv.Initialize(context.Background())

	done := make(chan error, 1)
	go func() { done <- conv.SubmitUserMessage(context.Background(), "hi") }()
	<-slow.started

	session, ok := store.Load(context.Background())
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(time.Minute).UnixMilli(), session.PendingUntil)

	close(slow.gate)
	require.NoError(t, <-done)
}
