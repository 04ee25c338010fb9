package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/negi-chat/internal/model/chat"
)

func newTestStore(cfg Config) *Store {
	return NewStore(cfg, zerolog.Nop())
}

func TestStore_AppendCreatesOnFirstReference(t *testing.T) {
	s := newTestStore(Config{})

	_, ok := s.Messages("chat_1")
	assert.False(t, ok)

	require.NoError(t, s.Append("chat_1", chat.RoleUser, "hello"))
	require.NoError(t, s.Append("chat_1", chat.RoleModel, "hi"))

	got, ok := s.Messages("chat_1")
	require.True(t, ok)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleModel, Content: "hi"},
	}, got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AppendValidates(t *testing.T) {
	s := newTestStore(Config{})

	assert.ErrorIs(t, s.Append("", chat.RoleUser, "x"), ErrSessionIDRequired)
	assert.ErrorIs(t, s.Append("chat_1", chat.Role("bot"), "x"), ErrInvalidRole)
	assert.Equal(t, 0, s.Len())
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	s := newTestStore(Config{})
	require.NoError(t, s.Append("chat_1", chat.RoleUser, "hello"))

	got, _ := s.Messages("chat_1")
	got[0].Content = "mutated"

	again, _ := s.Messages("chat_1")
	assert.Equal(t, "hello", again[0].Content)
}

func TestStore_AcquireSerializesSameSession(t *testing.T) {
	s := newTestStore(Config{})
	ctx := context.Background()

	first, err := s.Acquire(ctx, "chat_1")
	require.NoError(t, err)

	acquired := make(chan *Turn)
	go func() {
		turn, err := s.Acquire(ctx, "chat_1")
		if err == nil {
			acquired <- turn
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	first.Release() // idempotent

	select {
	case second := <-acquired:
		assert.Equal(t, "chat_1", second.ID())
		second.Release()
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired")
	}
}

func TestStore_AppendWaitsForTurnInProgress(t *testing.T) {
	s := newTestStore(Config{})

	turn, err := s.Acquire(context.Background(), "chat_1")
	require.NoError(t, err)
	turn.Append(chat.NewMessage(chat.RoleUser, "question"))

	done := make(chan error, 1)
	go func() {
		done <- s.Append("chat_1", chat.RoleUser, "interleaved")
	}()

	select {
	case <-done:
		t.Fatal("append ran while a turn held the session")
	case <-time.After(50 * time.Millisecond):
	}

	turn.Append(chat.NewMessage(chat.RoleModel, "answer"))
	turn.Release()
	require.NoError(t, <-done)

	msgs, ok := s.Messages("chat_1")
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.Equal(t, "interleaved", msgs[2].Content)
}

func TestStore_AcquireDoesNotBlockOtherSessions(t *testing.T) {
	s := newTestStore(Config{})
	ctx := context.Background()

	held, err := s.Acquire(ctx, "chat_1")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	other, err := s.Acquire(ctx, "chat_2")
	require.NoError(t, err)
	other.Release()
}

func TestStore_AcquireHonorsContext(t *testing.T) {
	s := newTestStore(Config{})

	held, err := s.Acquire(context.Background(), "chat_1")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "chat_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_ConcurrentTurnsKeepPairsTogether(t *testing.T) {
	s := newTestStore(Config{})
	ctx := context.Background()

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn, err := s.Acquire(ctx, "chat_1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer turn.Release()
			turn.Append(chat.NewMessage(chat.RoleUser, "q"))
			time.Sleep(time.Millisecond)
			turn.Append(chat.NewMessage(chat.RoleModel, "a"))
		}(i)
	}
	wg.Wait()

	got, _ := s.Messages("chat_1")
	require.Len(t, got, turns*2)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, chat.RoleUser, got[i].Role, "index %d", i)
		assert.Equal(t, chat.RoleModel, got[i+1].Role, "index %d", i+1)
	}
}

func TestStore_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestStore(Config{Capacity: 2})

	require.NoError(t, s.Append("a", chat.RoleUser, "1"))
	require.NoError(t, s.Append("b", chat.RoleUser, "2"))
	require.NoError(t, s.Append("a", chat.RoleModel, "3")) // a is now most recent
	require.NoError(t, s.Append("c", chat.RoleUser, "4"))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Messages("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = s.Messages("a")
	assert.True(t, ok)
	_, ok = s.Messages("c")
	assert.True(t, ok)
}

func TestStore_CapacityNeverEvictsSessionInUse(t *testing.T) {
	s := newTestStore(Config{Capacity: 1})

	held, err := s.Acquire(context.Background(), "a")
	require.NoError(t, err)
	held.Append(chat.NewMessage(chat.RoleUser, "in flight"))

	require.NoError(t, s.Append("b", chat.RoleUser, "other"))

	got, ok := s.Messages("a")
	require.True(t, ok, "session in use must survive eviction")
	assert.Len(t, got, 1)
	held.Release()
}

func TestStore_SweepRemovesIdleSessions(t *testing.T) {
	s := newTestStore(Config{TTL: time.Hour})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Append("old", chat.RoleUser, "x"))
	held, err := s.Acquire(context.Background(), "busy")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(50 * time.Minute) }
	require.NoError(t, s.Append("fresh", chat.RoleUser, "y"))

	removed := s.Sweep(base.Add(90 * time.Minute))
	assert.Equal(t, 1, removed)

	_, ok := s.Messages("old")
	assert.False(t, ok)
	_, ok = s.Messages("fresh")
	assert.True(t, ok)
	_, ok = s.Messages("busy")
	assert.True(t, ok)
	held.Release()
}

func TestStore_MaxMessagesKeepsWholeTurns(t *testing.T) {
	s := newTestStore(Config{MaxMessages: 3})

	for _, m := range []chat.Message{
		{Role: chat.RoleUser, Content: "u1"},
		{Role: chat.RoleModel, Content: "m1"},
		{Role: chat.RoleUser, Content: "u2"},
		{Role: chat.RoleModel, Content: "m2"},
	} {
		require.NoError(t, s.Append("chat_1", m.Role, m.Content))
	}

	got, _ := s.Messages("chat_1")
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "u2"},
		{Role: chat.RoleModel, Content: "m2"},
	}, got)
}

func TestJanitor_StartStop(t *testing.T) {
	s := newTestStore(Config{TTL: time.Nanosecond})
	require.NoError(t, s.Append("chat_1", chat.RoleUser, "x"))

	j := NewJanitor(s, 5*time.Millisecond, zerolog.Nop())
	j.Start(context.Background())
	j.Start(context.Background())

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	j.Stop()
	j.Stop()
}
