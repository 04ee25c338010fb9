package chat

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Message is a single immutable turn fragment. Order inside a session is the
// order in which messages were produced.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage builds a message value.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}
