package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/logging"
)

// TestHelperProcess is not a real test: it is the child process started by
// helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("TESTBOOT_HELPER_PROCESS") != "1" {
		return
	}
	if dir := os.Getenv("HELPER_WRITE_CWD"); dir != "" {
		wd, _ := os.Getwd()
		_ = os.WriteFile(filepath.Join(dir, "cwd"), []byte(wd), 0o644)
	}
	os.Stdout.WriteString("hello from helper\n")
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}

func helperCommand(dir string) domain.Command {
	return domain.Command{
		Name: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess"},
		Dir:  dir,
	}
}

func newTestExecutor(env ...string) (*Executor, *bytes.Buffer) {
	var out bytes.Buffer
	e := NewExecutor(logging.NewLoggerWithWriter("error", io.Discard))
	e.Stdin = nil
	e.Stdout = &out
	e.Stderr = io.Discard
	e.Env = append(os.Environ(), append([]string{"TESTBOOT_HELPER_PROCESS=1"}, env...)...)
	return e, &out
}

func TestRun_PropagatesExitCode(t *testing.T) {
	for _, want := range []int{0, 1, 3} {
		e, out := newTestExecutor("HELPER_EXIT=" + strconv.Itoa(want))
		code, err := e.Run(context.Background(), helperCommand(""))
		if err != nil {
			t.Fatalf("exit %d: unexpected error: %v", want, err)
		}
		if code != want {
			t.Fatalf("expected exit %d, got %d", want, code)
		}
		if !bytes.Contains(out.Bytes(), []byte("hello from helper")) {
			t.Fatalf("expected child stdout to be forwarded, got %q", out.String())
		}
	}
}

func TestRun_UsesCommandDir(t *testing.T) {
	dir := t.TempDir()
	report := t.TempDir()
	e, _ := newTestExecutor("HELPER_EXIT=0", "HELPER_WRITE_CWD="+report)

	if _, err := e.Run(context.Background(), helperCommand(dir)); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(report, "cwd"))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	gotResolved, _ := filepath.EvalSymlinks(string(got))
	if gotResolved != want {
		t.Fatalf("child ran in %q, expected %q", gotResolved, want)
	}
}

func TestRun_StartFailure(t *testing.T) {
	e, _ := newTestExecutor()
	code, err := e.Run(context.Background(), domain.Command{Name: filepath.Join(t.TempDir(), "does-not-exist")})
	if err == nil {
		t.Fatal("expected start error")
	}
	if code != 1 {
		t.Fatalf("expected exit code 1 on start failure, got %d", code)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	e, _ := newTestExecutor()
	if _, err := e.Run(context.Background(), domain.Command{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error should be exit 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatal("plain error should be exit 1")
	}
}
