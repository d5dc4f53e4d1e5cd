package sessions

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mmrzaf/testboot/internal/domain"
)

func TestListQueryPlaceholders(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := listQuery(domain.SessionFilter{Limit: 5, Status: "passed", Since: &since}, pgPlaceholder)

	for _, want := range []string{"status = $1", "started_at >= $2", "LIMIT $3", "ORDER BY started_at DESC"} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected %q in query: %s", want, query)
		}
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}

	query, args = listQuery(domain.SessionFilter{}, pgPlaceholder)
	if strings.Contains(query, "WHERE") || strings.Contains(query, "LIMIT") || len(args) != 0 {
		t.Fatalf("unexpected unfiltered query: %s %v", query, args)
	}
}

// Runs against a live server when TESTBOOT_TEST_POSTGRES_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TESTBOOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TESTBOOT_TEST_POSTGRES_DSN not set")
	}

	repo, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	if _, ok := repo.(*PostgresRepository); !ok {
		t.Fatalf("expected postgres repository, got %T", repo)
	}

	s := &domain.Session{
		Root:       "/r",
		MarkerPath: "/r/databases",
		Policy:     domain.PolicyContinue,
		ConfigHash: "h",
		Status:     domain.SessionStatusRunning,
		StartedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Create(s); err != nil {
		t.Fatal(err)
	}
	code := 0
	s.TestsInvoked = true
	s.TestExitCode = &code
	s.Status = domain.SessionStatusPassed
	if err := repo.Update(s); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.SessionStatusPassed || got.TestExitCode == nil || *got.TestExitCode != 0 {
		t.Fatalf("unexpected session: %+v", got)
	}
}
