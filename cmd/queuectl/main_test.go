package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qms/ticketing/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		KVBackend:    config.BackendMemory,
		BusTransport: config.TransportMemory,
		BusFallback:  config.TransportNone,
	}
}

func TestRunIssuePrintsTable(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"issue", "preferencial"}, memoryConfig(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "P001") || !strings.Contains(lines[1], "waiting") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"transfer"}},
		{"call without station", []string{"call", "t1"}},
		{"issue without service", []string{"issue"}},
		{"bad date", []string{"--date", "15/03", "stats"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tc.args, memoryConfig(), &out)
			if !errors.Is(err, errUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, memoryConfig(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "call-next") {
		t.Fatalf("help should list commands, got %q", out.String())
	}
}

func TestRunSeedAndNext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := []byte("stations:\n  - id: g7\n    number: 7\n    active: true\n    service_ids: [comum]\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), []string{"seed", path}, memoryConfig(), &out); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out.String(), "catalog seeded") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
