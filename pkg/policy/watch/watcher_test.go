package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
)

const policyYAML = `version: v2
triage_cards:
  - id: booking
    priority: 1
    must_have_keywords: [appointment]
    action: START_BOOKING
`

type call struct {
	tenantID string
	version  string
}

type fakeCompiler struct {
	mu    sync.Mutex
	calls []call
	ch    chan call

	// contended is how many upcoming compiles report the lock as held.
	contended int
}

func newFakeCompiler() *fakeCompiler {
	return &fakeCompiler{ch: make(chan call, 16)}
}

func (f *fakeCompiler) SaveAndCompile(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*compiler.Result, error) {
	c := call{tenantID: tenantID, version: raw.EffectiveVersion()}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	busy := f.contended > 0
	if busy {
		f.contended--
	}
	f.mu.Unlock()
	f.ch <- c
	if busy {
		return nil, &policy.ContentionError{TenantID: tenantID}
	}
	return &compiler.Result{Artifact: &policy.Artifact{TenantID: tenantID, Version: c.version}}, nil
}

func (f *fakeCompiler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTenantFromPath(t *testing.T) {
	tests := []struct {
		path   string
		tenant string
		ok     bool
	}{
		{"policies/acme.yaml", "acme", true},
		{"policies/globex.yml", "globex", true},
		{"policies/ACME.YAML", "ACME", true},
		{"policies/.acme.yaml.swp", "", false},
		{"policies/.hidden.yaml", "", false},
		{"policies/notes.txt", "", false},
		{"policies/.yaml", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := TenantFromPath(tt.path)
			if ok != tt.ok || got != tt.tenant {
				t.Errorf("TenantFromPath(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.tenant, tt.ok)
			}
		})
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}, newFakeCompiler(), nil); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestSync_CompilesEveryPolicyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "globex.yml"), policyYAML)
	writeFile(t, filepath.Join(dir, "acme.yaml"), policyYAML)
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.yaml"), "triage_cards: [")

	fc := newFakeCompiler()
	w, err := New(Config{Dir: dir}, fc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	if err := w.Sync(context.Background()); err == nil {
		t.Error("expected the broken file to be reported")
	}

	if len(fc.calls) != 2 {
		t.Fatalf("compiled %d files, want 2", len(fc.calls))
	}
	if fc.calls[0].tenantID != "acme" || fc.calls[1].tenantID != "globex" {
		t.Errorf("compile order = %+v, want acme then globex", fc.calls)
	}
	if fc.calls[0].version != "v2" {
		t.Errorf("version = %q, want v2", fc.calls[0].version)
	}
}

func TestWatch_CompilesOnWrite(t *testing.T) {
	dir := t.TempDir()
	fc := newFakeCompiler()
	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, fc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "acme.yaml")
	for i := 0; i < 5; i++ {
		writeFile(t, path, policyYAML)
	}
	writeFile(t, filepath.Join(dir, ".acme.yaml.swp"), "junk")

	select {
	case c := <-fc.ch:
		if c.tenantID != "acme" {
			t.Errorf("tenant = %q, want acme", c.tenantID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for compile")
	}

	// Bursts collapse into one compile.
	time.Sleep(200 * time.Millisecond)
	if n := fc.count(); n != 1 {
		t.Errorf("compiles = %d, want 1", n)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestWatch_RetriesContendedCompile(t *testing.T) {
	tests := []struct {
		name      string
		contended int
		want      int
	}{
		{"lock free", 0, 1},
		{"held once", 1, 2},
		{"held throughout", 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fc := newFakeCompiler()
			fc.contended = tt.contended
			w, err := New(Config{Dir: dir, Debounce: 30 * time.Millisecond}, fc, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- w.Watch(ctx) }()
			time.Sleep(100 * time.Millisecond)

			writeFile(t, filepath.Join(dir, "acme.yaml"), policyYAML)

			for i := 0; i < tt.want; i++ {
				select {
				case <-fc.ch:
				case <-time.After(2 * time.Second):
					t.Fatalf("timed out waiting for compile %d", i+1)
				}
			}
			time.Sleep(150 * time.Millisecond)
			if n := fc.count(); n != tt.want {
				t.Errorf("compiles = %d, want %d", n, tt.want)
			}

			if err := w.Stop(); err != nil {
				t.Errorf("Stop: %v", err)
			}
			<-done
		})
	}
}

func TestDebouncer(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	var a, b atomic.Int32

	for i := 0; i < 5; i++ {
		d.trigger("a", func() { a.Add(1) })
		d.trigger("b", func() { b.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("calls a=%d b=%d, want 1 each", a.Load(), b.Load())
	}

	d.trigger("a", func() { a.Add(1) })
	d.stop()
	time.Sleep(80 * time.Millisecond)
	if a.Load() != 1 {
		t.Errorf("callback ran after stop")
	}
	d.trigger("a", func() { a.Add(1) })
	time.Sleep(80 * time.Millisecond)
	if a.Load() != 1 {
		t.Errorf("trigger after stop scheduled a callback")
	}
}
