package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, Options{Service: "lendingd", Env: "test", Level: "debug"})
	logger.Debug("loan funded", slog.Uint64("loanId", 7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "lendingd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "loan funded", line["message"])
	require.EqualValues(t, 7, line["loanId"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithFileRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lendingd.log")
	logger := SetupWithOptions(Options{Service: "lendingd", File: path})
	logger.Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"started"`)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "42", MaskField("loanId", "42").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "caller")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
