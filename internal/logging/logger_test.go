package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantInfo  bool
		wantDebug bool
	}{
		{"", true, false},
		{"info", true, false},
		{"DEBUG", true, true},
		{"warn", false, false},
		{"error", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := New(tt.level, &buf)
			require.NoError(t, err)

			log.Info("info line")
			log.V(1).Info("debug line")

			assert.Equal(t, tt.wantInfo, strings.Contains(buf.String(), "info line"))
			assert.Equal(t, tt.wantDebug, strings.Contains(buf.String(), "debug line"))
		})
	}
}

func TestNew_UnknownLevel(t *testing.T) {
	_, err := New("verbose", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown log level")
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", &buf)
	require.NoError(t, err)

	log.WithName("steps").Error(errors.New("boom"), "failed", "op", "add_call_step")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "failed", line["msg"])
	assert.Equal(t, "steps", line["logger"])
	assert.Equal(t, "add_call_step", line["op"])
	assert.Equal(t, "boom", line["error"])
}
