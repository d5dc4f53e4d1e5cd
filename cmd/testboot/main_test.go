package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/infra/repos/sessions"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(cwd) }()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err = cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "status", "--root", root, "--history-db", "off")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "marker_present   = false") {
		t.Fatalf("expected absent marker, got:\n%s", out)
	}
	if !strings.Contains(out, filepath.Join(root, "databases")) {
		t.Fatalf("expected marker path in output, got:\n%s", out)
	}

	if err := os.Mkdir(filepath.Join(root, "databases"), 0o755); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "status", "--root", root, "--history-db", "off")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "marker_present   = true") {
		t.Fatalf("expected present marker, got:\n%s", out)
	}
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"marker_name: databases", "build_tool: staramr", "on_build_failure: abort"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRejectsPositionalArgs(t *testing.T) {
	if _, err := execute(t, "extra"); err == nil {
		t.Fatal("expected error for positional args")
	}
}

func TestBootstrapExitCodeFromTestCommand(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "databases"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TESTBOOT_TEST_COMMAND", filepath.Join(t.TempDir(), "missing-test-binary"))

	_, err := execute(t, "--root", root, "--history-db", "off")
	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit code error, got %v", err)
	}
	if exitErr.code != 1 {
		t.Fatalf("expected exit 1 for an unstartable test command, got %d", exitErr.code)
	}
}

func seedHistory(t *testing.T, path string) []*domain.Session {
	t.Helper()
	repo := sessions.NewSQLiteRepository(path)
	if err := repo.Init(); err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	now := time.Now().UTC()
	build := 0
	list := []*domain.Session{
		{Root: "/r", MarkerPath: "/r/databases", Policy: domain.PolicyAbort, ConfigHash: "h", Status: domain.SessionStatusPassed, StartedAt: now.Add(-10 * 24 * time.Hour)},
		{Root: "/r", MarkerPath: "/r/databases", Policy: domain.PolicyAbort, ConfigHash: "h", Status: domain.SessionStatusFailed, ExitCode: 1, BuildExitCode: &build, StartedAt: now.Add(-time.Hour)},
	}
	for _, s := range list {
		if err := repo.Create(s); err != nil {
			t.Fatal(err)
		}
	}
	return list
}

func TestHistoryListAndShow(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "sessions.sqlite")
	seeded := seedHistory(t, dbPath)

	out, err := execute(t, "history", "list", "--root", root, "--history-db", dbPath, "--format", "json", "--since", "7d")
	if err != nil {
		t.Fatal(err)
	}
	var listed []domain.Session
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("expected JSON output: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0].ID != seeded[1].ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	out, err = execute(t, "history", "list", "--root", root, "--history-db", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "STATUS") || !strings.Contains(out, seeded[0].ID[:8]) {
		t.Fatalf("unexpected table:\n%s", out)
	}

	out, err = execute(t, "history", "show", seeded[1].ID, "--root", root, "--history-db", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "status: failed") || !strings.Contains(out, "build_exit_code: 0") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	_, err = execute(t, "history", "show", "missing", "--root", root, "--history-db", dbPath)
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, err := execute(t, "history", "list", "--root", t.TempDir(), "--history-db", "off")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestHistoryListRejectsUnknownStatus(t *testing.T) {
	if _, err := execute(t, "history", "list", "--status", "weird"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRejectsHistoryInsideMarker(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TESTBOOT_MARKER", ".testboot")

	_, err := execute(t, "--root", root, "--history-db", filepath.Join(root, ".testboot", "sessions.sqlite"))
	if err == nil || !strings.Contains(err.Error(), "marker path") {
		t.Fatalf("expected history location error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".testboot")); !os.IsNotExist(err) {
		t.Fatalf("nothing should be created under the root, stat err: %v", err)
	}
}

func TestBootstrapDefaultHistoryStaysOutOfRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses mkdir and true from a POSIX userland")
	}
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)
	t.Setenv("HOME", cache)
	t.Setenv("TESTBOOT_BUILD_TOOL", "mkdir")
	t.Setenv("TESTBOOT_BUILD_ARGS", "databases")
	t.Setenv("TESTBOOT_TEST_COMMAND", "true")
	root := t.TempDir()

	if _, err := execute(t, "--root", root); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "databases" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the marker under the root, got %v", names)
	}

	userCache, err := os.UserCacheDir()
	if err != nil {
		t.Fatal(err)
	}
	dbs, err := filepath.Glob(filepath.Join(userCache, "testboot", "*", "sessions.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dbs) != 1 {
		t.Fatalf("expected one history database under %s, got %v", userCache, dbs)
	}
}
