//go:build unix

package exec

import (
	"context"
	"io"
	"testing"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/logging"
)

func TestRun_SignalledChildUsesShellExitCode(t *testing.T) {
	e := NewExecutor(logging.NewLoggerWithWriter("error", io.Discard))
	e.Stdin = nil
	e.Stdout = io.Discard
	e.Stderr = io.Discard

	for sig, want := range map[string]int{"KILL": 137, "TERM": 143} {
		code, err := e.Run(context.Background(), domain.Command{
			Name: "sh",
			Args: []string{"-c", "kill -" + sig + " $$"},
		})
		if err != nil {
			t.Fatalf("SIG%s: unexpected error: %v", sig, err)
		}
		if code != want {
			t.Fatalf("SIG%s: expected exit %d, got %d", sig, want, code)
		}
	}
}
