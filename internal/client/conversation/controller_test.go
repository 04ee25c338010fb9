package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/negi-chat/internal/client/transcript"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

type senderFunc func(ctx context.Context, chatID, message string) (string, error)

func (f senderFunc) Send(ctx context.Context, chatID, message string) (string, error) {
	return f(ctx, chatID, message)
}

func newTestController(t *testing.T, sender Sender) (*Controller, *transcript.Store) {
	t.Helper()
	kv, err := transcript.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	store, err := transcript.Open(kv, transcript.Options{Persona: persona.Default(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return New(store, sender, persona.Default(), zerolog.Nop()), store
}

func TestSendRecordsUserAndReply(t *testing.T) {
	var gotID, gotMessage string
	c, store := newTestController(t, senderFunc(func(_ context.Context, chatID, message string) (string, error) {
		gotID, gotMessage = chatID, message
		return "Haan bhai", nil
	}))

	reply, err := c.Send(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "Haan bhai", reply)

	id, tr := store.Active()
	assert.Equal(t, id, gotID)
	assert.Equal(t, "hello", gotMessage)
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, chat.NewMessage(chat.RoleUser, "hello"), tr.Messages[1])
	assert.Equal(t, chat.NewMessage(chat.RoleModel, "Haan bhai"), tr.Messages[2])
	assert.Equal(t, "hello", tr.Title)
}

func TestSendRejectsEmpty(t *testing.T) {
	c, store := newTestController(t, senderFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("sender must not be called")
		return "", nil
	}))

	_, err := c.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, tr := store.Active()
	assert.Len(t, tr.Messages, 1)
}

func TestSendFailureAppendsApologyLocally(t *testing.T) {
	upstream := errors.New("server returned 500")
	c, store := newTestController(t, senderFunc(func(context.Context, string, string) (string, error) {
		return "", upstream
	}))

	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, upstream)

	_, tr := store.Active()
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, chat.RoleUser, tr.Messages[1].Role)
	assert.Equal(t, chat.NewMessage(chat.RoleModel, persona.Default().Apology), tr.Messages[2])
}

func TestSendRefusesSecondTurnInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c, store := newTestController(t, senderFunc(func(context.Context, string, string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "first")
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first turn did not start")
	}

	id, _ := store.Active()
	assert.True(t, c.Pending(id))
	_, err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, c.Pending(id))

	_, tr := store.Active()
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, "first", tr.Messages[1].Content)
}

func TestSendOtherSessionWhileInFlight(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	c, store := newTestController(t, senderFunc(func(_ context.Context, _ string, message string) (string, error) {
		started <- struct{}{}
		if message == "first" {
			<-release
		}
		return "ok " + message, nil
	}))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "first")
		errCh <- err
	}()
	<-started

	_, err := store.CreateSession()
	require.NoError(t, err)
	reply, err := c.Send(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "ok second", reply)

	close(release)
	require.NoError(t, <-errCh)
}
