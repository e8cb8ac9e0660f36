package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// Compiler saves and compiles a tenant policy. *compiler.Compiler
// implements it.
type Compiler interface {
	SaveAndCompile(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*compiler.Result, error)
}

// Config configures a Watcher.
type Config struct {
	// Dir holds the tenant policy files.
	Dir string

	Debounce time.Duration
}

// Watcher compiles tenant policy files as they change.
type Watcher struct {
	cfg      Config
	compiler Compiler
	watcher  *fsnotify.Watcher
	debounce *debouncer
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher over cfg.Dir.
func New(cfg Config, c Compiler, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:      cfg,
		compiler: c,
		watcher:  fw,
		debounce: newDebouncer(cfg.Debounce),
		logger:   logger.With("component", "policy.watch"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// TenantFromPath returns the tenant a policy file belongs to. Hidden files
// and files without a YAML extension belong to no tenant.
func TenantFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	tenantID := strings.TrimSuffix(base, filepath.Ext(base))
	return tenantID, tenantID != ""
}

// Sync compiles every policy file in the directory once, in name order.
// It returns the first error but attempts every file.
func (w *Watcher) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read policy directory %q: %w", w.cfg.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var first error
	for _, name := range names {
		if _, ok := TenantFromPath(name); !ok {
			continue
		}
		if err := w.compile(ctx, filepath.Join(w.cfg.Dir, name)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Watch blocks, compiling changed files, until ctx is cancelled or Stop is
// called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.cfg.Dir, err)
	}

	w.logger.Info("policy watcher started",
		"dir", w.cfg.Dir,
		"debounce_ms", w.cfg.Debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	tenantID, ok := TenantFromPath(event.Name)
	if !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.logger.Info("policy file removed, keeping tenant policy",
				"tenant_id", tenantID,
				"path", event.Name)
		}
		return
	}

	w.schedule(ctx, event.Name, contentionRetries)
}

// contentionRetries is how many times a file compile that found the tenant
// lock held is rescheduled. The policy is already saved by then, so without
// a retry it would stay uncompiled until the next write.
const contentionRetries = 1

func (w *Watcher) schedule(ctx context.Context, path string, retries int) {
	w.debounce.trigger(path, func() {
		err := w.compile(ctx, path)
		if retries > 0 && errors.Is(err, policy.ErrCompileInProgress) {
			w.logger.InfoContext(ctx, "tenant is compiling, retrying policy file",
				"path", path,
				"retry_in_ms", w.cfg.Debounce.Milliseconds())
			w.schedule(ctx, path, retries-1)
		}
	})
}

func (w *Watcher) compile(ctx context.Context, path string) error {
	tenantID, _ := TenantFromPath(path)

	raw, err := policy.LoadFile(path)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to load policy file",
			"tenant_id", tenantID,
			"path", path,
			"error", err)
		return err
	}

	res, err := w.compiler.SaveAndCompile(ctx, tenantID, raw)
	if err != nil {
		w.logger.ErrorContext(ctx, "policy compile failed",
			"tenant_id", tenantID,
			"path", path,
			"error", err)
		return err
	}

	w.logger.InfoContext(ctx, "policy compiled from file",
		"tenant_id", tenantID,
		"version", res.Artifact.Version,
		"checksum", res.Checksum,
		"conflicts", len(res.Conflicts),
		"warnings", len(res.Warnings))
	return nil
}

// Stop stops Watch and cancels pending compiles.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
