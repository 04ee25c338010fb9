package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsMessageAndReturnsReply(t *testing.T) {
	var got chatRequest
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"Haan bhai"}`))
	}))
	defer srv.Close()

	reply, err := New(srv.URL+"/", time.Second).Send(context.Background(), "chat_1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Haan bhai", reply)
	assert.Equal(t, chatRequest{Message: "hello", ChatID: "chat_1"}, got)
	assert.NotEmpty(t, requestID)
}

func TestSendNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to get a response from the chatbot."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Send(context.Background(), "chat_1", "hello")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "Failed to get a response from the chatbot.", statusErr.Message)
}

func TestSendEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Send(context.Background(), "chat_1", "hello")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestSendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, 0).Send(ctx, "chat_1", "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
