package chat

// DefaultTitle is shown for conversations that have no user message yet.
const DefaultTitle = "New Chat"

// Transcript is the client-side record of one conversation.
type Transcript struct {
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// FirstUserMessage returns the first user-authored message, if any.
func (t Transcript) FirstUserMessage() (Message, bool) {
	for _, msg := range t.Messages {
		if msg.Role == RoleUser {
			return msg, true
		}
	}
	return Message{}, false
}

// DisplayTitle returns the title, falling back to the first user message and
// then to DefaultTitle.
func (t Transcript) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	if msg, ok := t.FirstUserMessage(); ok && msg.Content != "" {
		return msg.Content
	}
	return DefaultTitle
}

// Clone returns a deep copy so callers cannot mutate stored history.
func (t Transcript) Clone() Transcript {
	out := Transcript{Title: t.Title, Messages: make([]Message, len(t.Messages))}
	copy(out.Messages, t.Messages)
	return out
}
