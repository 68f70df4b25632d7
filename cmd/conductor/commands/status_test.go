package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conductorhq/conductor/internal/config"
)

func TestStatusCommand_PrintsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})

	if !strings.Contains(output, "Conductor Status") {
		t.Fatalf("expected status output, got: %s", output)
	}
	if !strings.Contains(output, "Default timeout: 30m0s") {
		t.Fatalf("expected default timeout line, got: %s", output)
	}
	if !strings.Contains(output, "Telegram: disabled") {
		t.Fatalf("expected telegram status line, got: %s", output)
	}
	if !strings.Contains(output, "Address: 0.0.0.0:18920") {
		t.Fatalf("expected gateway address line, got: %s", output)
	}
}

func TestStatusCommand_InvalidWorkspaceModeReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	configPath := config.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	raw := `{
  "workspace": {
    "mode": "path",
    "path": ""
  }
}`

	if err := os.WriteFile(configPath, []byte(raw), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := runStatus(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
