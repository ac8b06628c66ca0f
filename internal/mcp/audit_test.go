package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type auditLine struct {
	Level      string            `json:"level"`
	Msg        string            `json:"msg"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error"`
	Params     map[string]string `json:"params"`
}

func readAudit(t *testing.T, dir string) []auditLine {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var lines []auditLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var l auditLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("bad audit line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, l)
	}
	return lines
}

func TestAuditLogger_Record(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	if a == nil {
		t.Fatal("NewAuditLogger returned nil")
	}
	a.Record("cosim_runs", time.Now(), nil, map[string]any{"limit": 5})
	a.Record("cosim_validate", time.Now(), errors.New("boom"), map[string]any{"path": "/tmp/p.json"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := readAudit(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Msg != "success" || lines[0].Params["limit"] != "5" {
		t.Errorf("unexpected success line: %+v", lines[0])
	}
	if lines[1].Msg != "error" || lines[1].Level != "WARN" || lines[1].Error != "boom" {
		t.Errorf("unexpected error line: %+v", lines[1])
	}
	if lines[1].Params["path"] != "set" {
		t.Errorf("expected path to be recorded as set, got %q", lines[1].Params["path"])
	}

	info, err := os.Stat(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}
}

func TestAuditLogger_NilAndClosed(t *testing.T) {
	var nilLogger *AuditLogger
	nilLogger.Record("cosim_runs", time.Now(), nil, nil)
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}

	a := NewAuditLogger(t.TempDir())
	a.Close()
	a.Record("cosim_runs", time.Now(), nil, nil)
	if err := a.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestAuditParams(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want map[string]string
	}{
		{"nil", nil, map[string]string{}},
		{"limit keeps value", map[string]any{"limit": 3}, map[string]string{"limit": "3"}},
		{"path is presence only", map[string]any{"path": "/home/alice/p.json"}, map[string]string{"path": "set"}},
		{"unknown is presence only", map[string]any{"id": "run-1"}, map[string]string{"id": "set"}},
		{"empty values are dropped", map[string]any{"id": "", "limit": 0, "x": nil}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := auditParams(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestHandlers_AuditWithoutPaths(t *testing.T) {
	auditDir := t.TempDir()
	s, err := NewServer(&Config{Name: "cosim-test", Version: "v0.0.0", AuditDir: auditDir})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	path := writeParameterFile(t, t.TempDir(), nil)
	s.handleValidate(context.Background(), &sdk.CallToolRequest{}, ValidateInput{Path: path})
	s.Close()

	data, err := os.ReadFile(filepath.Join(auditDir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), path) {
		t.Error("audit log must not contain file paths")
	}
	lines := readAudit(t, auditDir)
	if len(lines) != 1 || lines[0].Tool != "cosim_validate" || lines[0].Msg != "success" {
		t.Errorf("unexpected audit lines: %+v", lines)
	}
}
