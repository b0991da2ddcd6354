package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent_WritesThroughSink(t *testing.T) {
	buf := &bytes.Buffer{}
	t.Cleanup(func() { output.set(zerolog.ConsoleWriter{Out: os.Stderr}) })

	// created before the sink changes
	logger := Component("test")
	output.set(buf)

	logger.Info().Str("k", "v").Msg("hello")

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "v", entry["k"])
}

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		output.set(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	tests := []struct {
		name      string
		cfg       Config
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{name: "defaults", cfg: Config{}, wantLevel: zerolog.InfoLevel},
		{name: "debug json", cfg: Config{Level: "DEBUG", Format: "json"}, wantLevel: zerolog.DebugLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			closer, err := Setup(&tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, closer.Close())
			assert.Equal(t, tc.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestSetup_File(t *testing.T) {
	t.Cleanup(func() { output.set(zerolog.ConsoleWriter{Out: os.Stderr}) })

	path := filepath.Join(t.TempDir(), "visitorlink.log")
	closer, err := Setup(&Config{Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l := Component("test")
	l.Warn().Msg("to file")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"to file"`)
	assert.Contains(t, string(b), `"component":"test"`)
}
