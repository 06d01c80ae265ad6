package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/ehrai/internal/config"
	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/internal/platform/blobstore"
)

// ---------------------------------------------------------------------------
// migrationFiles
// ---------------------------------------------------------------------------

func TestMigrationFiles_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles(""), ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name() == "001_core.sql" {
			found = true
		}
	}
	if !found {
		t.Error("expected 001_core.sql in the embedded set")
	}
}

func TestMigrationFiles_Dir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "002_extra.sql"), []byte("SELECT 1;"), 0o644)

	b, err := fs.ReadFile(migrationFiles(dir), "002_extra.sql")
	if err != nil || string(b) != "SELECT 1;" {
		t.Errorf("expected file from dir, got %q (%v)", b, err)
	}
}

// ---------------------------------------------------------------------------
// readInput / parseRoles
// ---------------------------------------------------------------------------

func TestReadInput(t *testing.T) {
	got, err := readInput("", strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Errorf("stdin: got %q (%v)", got, err)
	}
	got, _ = readInput("-", strings.NewReader("dash"))
	if got != "dash" {
		t.Errorf("dash: got %q", got)
	}

	path := filepath.Join(t.TempDir(), "note.txt")
	os.WriteFile(path, []byte("from file"), 0o644)
	got, err = readInput(path, strings.NewReader("ignored"))
	if err != nil || got != "from file" {
		t.Errorf("file: got %q (%v)", got, err)
	}

	if _, err := readInput(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{"doctor", []string{auth.RoleDoctor}, false},
		{" admin , doctor ", []string{auth.RoleAdmin, auth.RoleDoctor}, false},
		{"patient,", []string{auth.RolePatient}, false},
		{"", nil, true},
		{"nurse", nil, true},
	}
	for _, tt := range tests {
		got, err := parseRoles(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRoles(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("parseRoles(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// wiring helpers
// ---------------------------------------------------------------------------

func TestNewStructuringService_WithoutKey(t *testing.T) {
	svc, err := newStructuringService(context.Background(), &config.Config{StructuringTimeout: 1}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.RemoteConfigured() {
		t.Error("expected remote strategy to be disabled without a key")
	}
}

func TestNewBlobStore_Memory(t *testing.T) {
	store, err := newBlobStore(context.Background(), &config.Config{BlobBackend: "memory", MaxUploadBytes: 1024})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*blobstore.MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}
}

func TestNewPublisher_Disabled(t *testing.T) {
	pub, err := newPublisher(context.Background(), &config.Config{})
	if err != nil || pub != nil {
		t.Errorf("expected no publisher without a queue, got %v (%v)", pub, err)
	}
}

// ---------------------------------------------------------------------------
// structure command
// ---------------------------------------------------------------------------

func TestStructureCmd_Local(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cmd := structureCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("Patient has fever and cough. Diagnosed with viral fever. Paracetamol 500 mg twice daily for 5 days."))
	cmd.SetArgs([]string{"--strategy", "local"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := out.String()
	dec := json.NewDecoder(strings.NewReader(output))
	var sp structuring.StructuredPrescription
	if err := dec.Decode(&sp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if sp.Diagnosis == "" {
		t.Errorf("expected a diagnosis, got %+v", sp)
	}
	if !strings.Contains(output, "Diagnosis:") {
		t.Error("expected the summary after the JSON")
	}
}

func TestStructureCmd_UnknownStrategy(t *testing.T) {
	cmd := structureCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("text"))
	cmd.SetArgs([]string{"--strategy", "magic"})

	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "unknown strategy") {
		t.Errorf("expected unknown strategy error, got %v", err)
	}
}
