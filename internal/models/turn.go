package models

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single transcript entry.
//
// Text is the content kept in history. For user turns it is the augmented
// query that was sent to the pipeline; Display holds what the user typed.
type Turn struct {
	Role    Role
	Text    string
	Display string
}

// Rendered returns the text a surface should show for the turn.
func (t Turn) Rendered() string {
	if t.Display != "" {
		return t.Display
	}
	return t.Text
}
