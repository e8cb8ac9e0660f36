package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/policy/watch"
	"mercator-hq/switchboard/pkg/tenant"
)

// policyFiles resolves --file and --dir flags to a sorted list of tenant
// policy files.
func policyFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list policy files: %w", err)
		}
		for _, e := range entries {
			if _, ok := watch.TenantFromPath(e.Name()); ok && !e.IsDir() {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found")
	}
	sort.Strings(files)
	return files, nil
}

// tenantFor returns the explicit tenant, or the one named by the file.
func tenantFor(explicit, path string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if id, ok := watch.TenantFromPath(path); ok {
		return id, nil
	}
	return "", fmt.Errorf("cannot derive a tenant from %q; pass --tenant", path)
}

// compileOffline compiles raw against throwaway in-memory backends.
func compileOffline(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*compiler.Result, error) {
	store := cache.NewMemoryStore(0, 0)
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.Default()
	}

	c := compiler.New(tenant.NewMemoryRepository(), store, compiler.Options{Logger: logger})
	return c.Compile(ctx, tenantID, raw)
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil || cmd.Context() == nil {
		return context.Background()
	}
	return cmd.Context()
}
