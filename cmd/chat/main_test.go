package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

func newChatServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
			ChatID  string `json:"chatId"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"Failed to get a response from the chatbot."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "re: " + req.Message})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runChat(t *testing.T, dataDir, serverURL, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{persona: persona.Default()}
	root := newRootCmd(a)
	out := &bytes.Buffer{}
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--data-dir", dataDir, "--server", serverURL}, args...))

	err := root.Execute()
	require.NoError(t, a.close())
	return out.String(), err
}

func TestSendAndShowPersistAcrossRuns(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	dir := t.TempDir()

	out, err := runChat(t, dir, srv.URL, "", "send", "Bhai", "array", "beginner", "hoon.")
	require.NoError(t, err)
	assert.Equal(t, "re: Bhai array beginner hoon.\n", out)

	out, err = runChat(t, dir, srv.URL, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, persona.Default().Greeting)
	assert.Contains(t, out, "you> Bhai array beginner hoon.")
	assert.Contains(t, out, "Rohit Negi> re: Bhai array beginner hoon.")

	out, err = runChat(t, dir, srv.URL, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* chat_")
	assert.Contains(t, out, "Bhai array beginner hoon.")
}

func TestSendFailurePrintsApology(t *testing.T) {
	srv := newChatServer(t, http.StatusInternalServerError)
	dir := t.TempDir()

	out, err := runChat(t, dir, srv.URL, "", "send", "hello")
	require.Error(t, err)
	assert.Contains(t, out, persona.Default().Apology)

	out, err = runChat(t, dir, srv.URL, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "you> hello")
	assert.Contains(t, out, "Rohit Negi> "+persona.Default().Apology)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	dir := t.TempDir()

	id, err := runChat(t, dir, srv.URL, "", "new")
	require.NoError(t, err)
	id = strings.TrimSpace(id)

	out, err := runChat(t, dir, srv.URL, "n\n", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "not deleted")

	out, err = runChat(t, dir, srv.URL, "", "delete", "--yes", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)

	out, err = runChat(t, dir, srv.URL, "", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestReplRunsTurnsAndCommands(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	dir := t.TempDir()

	out, err := runChat(t, dir, srv.URL, "hello\n/theme dark\n/new\n/list\n/quit\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Rohit Negi> re: hello")
	assert.Contains(t, out, "theme: dark")

	out, err = runChat(t, dir, srv.URL, "", "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)
}
