package memory

import "time"

// Conversation holds the refinement history of one session, keyed by
// capability name ("caption", "hashtags"). Histories never share backing
// arrays across capabilities or across copies made by Clone.
type Conversation map[string][]Turn

// Append records one exchange for capability and evicts the oldest turns
// beyond MaxTurns.
func (c *Conversation) Append(capability, userText, assistantText string, at time.Time) {
	if *c == nil {
		*c = make(Conversation)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	history := append((*c)[capability],
		Turn{Role: RoleUser, Content: userText, At: at},
		Turn{Role: RoleAssistant, Content: assistantText, At: at},
	)
	if over := len(history) - MaxTurns; over > 0 {
		trimmed := make([]Turn, MaxTurns)
		copy(trimmed, history[over:])
		history = trimmed
	}
	(*c)[capability] = history
}

// Read returns a copy of the capability history in insertion order. The
// result is empty, never nil, when nothing was recorded.
func (c Conversation) Read(capability string) []Turn {
	src := c[capability]
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	for k := range c {
		out[k] = c.Read(k)
	}
	return out
}

// Record appends every exchange in order with the same timestamp.
func (c *Conversation) Record(exchanges []Exchange, at time.Time) {
	for _, ex := range exchanges {
		c.Append(ex.Capability, ex.User, ex.Assistant, at)
	}
}
