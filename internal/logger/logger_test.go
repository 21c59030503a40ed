package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())
}

func TestLevels(t *testing.T) {
	defer reset()
	color.NoColor = true

	tests := []struct {
		name    string
		verbose bool
		log     func(string, ...any)
		want    string
	}{
		{"debug quiet", false, Debug, ""},
		{"debug verbose", true, Debug, "[DEBUG] loaded 3 chunks\n"},
		{"info verbose", true, Info, "[INFO] loaded 3 chunks\n"},
		{"warn quiet", false, Warn, ""},
		{"error quiet", false, Error, "[ERROR] loaded 3 chunks\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetOutput(&buf)
			SetVerbose(tt.verbose)

			tt.log("loaded %d chunks", 3)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
