package tenant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/switchboard/pkg/policy"
)

// runRepositoryTests exercises the Repository contract against repo.
// tenantPrefix keeps runs against a shared database isolated.
func runRepositoryTests(t *testing.T, repo Repository, tenantPrefix string) {
	ctx := context.Background()
	tenant := func(name string) string { return tenantPrefix + name }

	t.Run("LoadPolicy missing", func(t *testing.T) {
		_, err := repo.LoadPolicy(ctx, tenant("missing"))
		if !errors.Is(err, ErrTenantNotFound) {
			t.Errorf("LoadPolicy() error = %v, want ErrTenantNotFound", err)
		}
	})

	t.Run("SavePolicy round trip", func(t *testing.T) {
		raw := &policy.RawPolicy{
			Version: "v3",
			TriageCards: []policy.RoutingRule{
				{ID: "tuneup", Priority: 10, MustHaveKeywords: []string{"ac", "tuneup"}, Action: policy.ActionStartBooking, Enabled: policy.Bool(false)},
			},
			Guardrails: []string{policy.GuardrailNoPrices},
		}
		if err := repo.SavePolicy(ctx, tenant("acme"), raw); err != nil {
			t.Fatalf("SavePolicy() error = %v", err)
		}

		got, err := repo.LoadPolicy(ctx, tenant("acme"))
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		if got.Version != "v3" {
			t.Errorf("Version = %q, want %q", got.Version, "v3")
		}
		if len(got.TriageCards) != 1 || got.TriageCards[0].IsEnabled() {
			t.Errorf("TriageCards = %+v, want one disabled card", got.TriageCards)
		}
	})

	t.Run("compile lock CAS", func(t *testing.T) {
		id := tenant("locking")
		now := time.Now()

		if err := repo.AcquireCompileLock(ctx, id, "tok-1", now); err != nil {
			t.Fatalf("first AcquireCompileLock() error = %v", err)
		}
		if err := repo.AcquireCompileLock(ctx, id, "tok-2", now); !errors.Is(err, ErrLockHeld) {
			t.Fatalf("second AcquireCompileLock() error = %v, want ErrLockHeld", err)
		}
		if err := repo.ReleaseCompileLock(ctx, id, "tok-2"); !errors.Is(err, ErrLockNotHeld) {
			t.Errorf("ReleaseCompileLock(wrong token) error = %v, want ErrLockNotHeld", err)
		}
		if err := repo.ReleaseCompileLock(ctx, id, "tok-1"); err != nil {
			t.Fatalf("ReleaseCompileLock() error = %v", err)
		}
		if err := repo.ReleaseCompileLock(ctx, id, "tok-1"); !errors.Is(err, ErrLockNotHeld) {
			t.Errorf("double ReleaseCompileLock() error = %v, want ErrLockNotHeld", err)
		}
		if err := repo.AcquireCompileLock(ctx, id, "tok-3", now); err != nil {
			t.Errorf("AcquireCompileLock() after release error = %v", err)
		}
		repo.ReleaseCompileLock(ctx, id, "tok-3")
	})

	t.Run("concurrent acquire has one winner", func(t *testing.T) {
		id := tenant("race")
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.AcquireCompileLock(ctx, id, uuid.NewString(), time.Now()); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Errorf("winners = %d, want 1", winners)
		}
	})

	t.Run("metadata", func(t *testing.T) {
		id := tenant("meta")
		if _, err := repo.GetCompileMetadata(ctx, id); !errors.Is(err, ErrTenantNotFound) {
			t.Errorf("GetCompileMetadata(missing) error = %v, want ErrTenantNotFound", err)
		}

		compiledAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		meta := CompileMetadata{Version: "v1", Checksum: "abc", CacheKey: "policy:artifact:x:v1:abc", CompiledAt: compiledAt, Conflicts: 2}
		if err := repo.UpdateCompileMetadata(ctx, id, meta); err != nil {
			t.Fatalf("UpdateCompileMetadata() error = %v", err)
		}

		got, err := repo.GetCompileMetadata(ctx, id)
		if err != nil {
			t.Fatalf("GetCompileMetadata() error = %v", err)
		}
		if got.Checksum != "abc" || got.Conflicts != 2 || !got.CompiledAt.Equal(compiledAt) {
			t.Errorf("GetCompileMetadata() = %+v, want %+v", got, meta)
		}
	})

	t.Run("reap stale locks", func(t *testing.T) {
		old := tenant("stale")
		fresh := tenant("fresh")
		now := time.Now()

		repo.AcquireCompileLock(ctx, old, "old-token", now.Add(-time.Hour))
		repo.AcquireCompileLock(ctx, fresh, "fresh-token", now)

		reaped, err := repo.ReapStaleLocks(ctx, now.Add(-10*time.Minute))
		if err != nil {
			t.Fatalf("ReapStaleLocks() error = %v", err)
		}

		found := false
		for _, info := range reaped {
			if info.TenantID == fresh {
				t.Errorf("fresh lock was reaped")
			}
			if info.TenantID == old && info.Token == "old-token" {
				found = true
			}
		}
		if !found {
			t.Errorf("ReapStaleLocks() = %+v, want %q reaped", reaped, old)
		}

		if err := repo.AcquireCompileLock(ctx, old, "new-token", now); err != nil {
			t.Errorf("AcquireCompileLock() after reap error = %v", err)
		}
		if err := repo.AcquireCompileLock(ctx, fresh, "other", now); !errors.Is(err, ErrLockHeld) {
			t.Errorf("fresh lock should still be held, got %v", err)
		}
	})

	t.Run("ListTenants", func(t *testing.T) {
		ids, err := repo.ListTenants(ctx)
		if err != nil {
			t.Fatalf("ListTenants() error = %v", err)
		}
		seen := make(map[string]bool)
		for _, id := range ids {
			seen[id] = true
		}
		if !seen[tenant("acme")] || !seen[tenant("locking")] {
			t.Errorf("ListTenants() = %v, missing saved tenants", ids)
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryTests(t, NewMemoryRepository(), "")
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(SQLiteConfig{Path: filepath.Join(t.TempDir(), "tenants.db")})
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	defer repo.Close()

	runRepositoryTests(t, repo, "")
}

func TestNewSQLiteRepository_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteRepository(SQLiteConfig{}); err == nil {
		t.Error("NewSQLiteRepository(empty path) error = nil, want error")
	}
}

func TestPostgresRepository(t *testing.T) {
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	if err := RunMigrations(connString); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	repo, err := NewPostgresRepository(context.Background(), connString)
	if err != nil {
		t.Fatalf("NewPostgresRepository() error = %v", err)
	}
	defer repo.Close()

	runRepositoryTests(t, repo, "test-"+uuid.NewString()[:8]+"-")
}
