package chat

import (
	"slices"

	"github.com/xhad/ayurchat/internal/models"
)

// Transcript is an ordered, append-only list of turns. The zero value is an
// empty transcript. Append returns a new value and never writes into storage
// shared with an earlier one.
type Transcript struct {
	turns []models.Turn
}

func (t Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of the entries.
func (t Transcript) Turns() []models.Turn {
	return slices.Clone(t.turns)
}

func (t Transcript) Append(turns ...models.Turn) Transcript {
	return Transcript{turns: append(slices.Clip(t.turns), turns...)}
}

func (t Transcript) Last() (models.Turn, bool) {
	if len(t.turns) == 0 {
		return models.Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Dangling reports whether the last entry is a user turn with no reply.
func (t Transcript) Dangling() bool {
	last, ok := t.Last()
	return ok && last.Role == models.RoleUser
}
