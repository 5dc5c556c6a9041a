package memory

import "time"

// MaxTurns bounds each capability history (five user/assistant exchanges).
const MaxTurns = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn stores a single user or assistant conversational turn.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// Exchange is one user instruction and the assistant output it produced
// for a capability.
type Exchange struct {
	Capability string
	User       string
	Assistant  string
}
