package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
)

var compileFlags struct {
	tenant  string
	file    string
	dir     string
	publish bool
	format  string
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile tenant policies",
	Long: `Compile tenant policy files into artifacts and report their checksums and
conflicts.

By default the compile runs offline against in-memory backends, which is
useful in CI. With --publish the policy is saved to the configured tenant
store and the artifact is published to the configured cache, exactly as an
admin save through the API would.

The tenant is taken from --tenant or, when omitted, from the file name
(policies/acme.yaml compiles tenant "acme").

Examples:
  # Compile one file offline
  switchboard compile --file policies/acme.yaml

  # Compile every tenant in a directory and publish
  switchboard compile --dir policies/ --publish

  # Machine-readable output
  switchboard compile --file policies/acme.yaml --output json`,
	RunE: compilePolicies,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileFlags.tenant, "tenant", "t", "", "tenant ID (defaults to the file name)")
	compileCmd.Flags().StringVarP(&compileFlags.file, "file", "f", "", "policy file to compile")
	compileCmd.Flags().StringVarP(&compileFlags.dir, "dir", "d", "", "directory of <tenant>.yaml policy files")
	compileCmd.Flags().BoolVar(&compileFlags.publish, "publish", false, "save and publish using the configured backends")
	compileCmd.Flags().StringVarP(&compileFlags.format, "output", "o", "text", "output format: text, json, csv")
}

// CompileReport summarizes one compiled tenant policy.
type CompileReport struct {
	File      string                  `json:"file"`
	TenantID  string                  `json:"tenantId"`
	Version   string                  `json:"version"`
	Status    policy.Status           `json:"status"`
	Checksum  string                  `json:"checksum"`
	CacheKey  string                  `json:"cacheKey"`
	Activated bool                    `json:"activated"`
	Conflicts []policy.ConflictRecord `json:"conflicts"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// CompileReports renders as a table with one row per tenant.
type CompileReports []CompileReport

func (r CompileReports) Header() []string {
	return []string{"TENANT", "VERSION", "STATUS", "CHECKSUM", "CONFLICTS", "WARNINGS"}
}

func (r CompileReports) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, rep := range r {
		checksum := rep.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		rows = append(rows, []string{
			rep.TenantID,
			rep.Version,
			string(rep.Status),
			checksum,
			strconv.Itoa(len(rep.Conflicts)),
			strconv.Itoa(len(rep.Warnings)),
		})
	}
	return rows
}

func compilePolicies(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(compileFlags.format)
	if err != nil {
		return err
	}
	files, err := policyFiles(compileFlags.file, compileFlags.dir)
	if err != nil {
		return err
	}
	if compileFlags.tenant != "" && len(files) > 1 {
		return fmt.Errorf("--tenant cannot be combined with a directory of several files")
	}

	ctx := commandContext(cmd)
	var compile compileFunc = compileOffline

	if compileFlags.publish {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(&cfg.Telemetry.Logging)
		if err != nil {
			return err
		}
		st, err := openStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		compile = st.compiler.SaveAndCompile
	}

	out := stdout(cmd)
	var progress cli.ProgressReporter
	if len(files) > 1 && format == cli.FormatText {
		progress = cli.NewProgressReporter(nil)
		progress.Start(len(files))
	}

	var (
		reports  CompileReports
		firstErr error
	)
	for i, path := range files {
		rep, err := compileFile(ctx, path, compile)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if progress != nil {
				progress.Error(err)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
			}
		} else {
			reports = append(reports, *rep)
		}
		if progress != nil {
			progress.Update(i + 1)
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if len(reports) > 0 {
		if err := cli.NewFormatter(format).FormatTo(out, reports); err != nil {
			return err
		}
		if format == cli.FormatText {
			printCompileDetails(out, reports)
		}
	}
	return firstErr
}

type compileFunc func(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*compiler.Result, error)

func compileFile(ctx context.Context, path string, compile compileFunc) (*CompileReport, error) {
	tenantID, err := tenantFor(compileFlags.tenant, path)
	if err != nil {
		return nil, err
	}
	raw, err := policy.LoadFile(path)
	if err != nil {
		return nil, err
	}

	res, err := compile(ctx, tenantID, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rep := &CompileReport{
		File:      path,
		TenantID:  tenantID,
		Version:   res.Artifact.Version,
		Status:    res.Artifact.Status,
		Checksum:  res.Checksum,
		CacheKey:  res.CacheKey,
		Activated: res.Activated,
		Conflicts: res.Conflicts,
	}
	if rep.Conflicts == nil {
		rep.Conflicts = []policy.ConflictRecord{}
	}
	for _, w := range res.Warnings {
		rep.Warnings = append(rep.Warnings, w.Error())
	}
	return rep, nil
}

func printCompileDetails(w io.Writer, reports CompileReports) {
	for _, rep := range reports {
		for _, c := range rep.Conflicts {
			fmt.Fprintf(w, "  %s: %s %s/%s (overlap %.2f): %s\n",
				rep.TenantID, c.Type, c.RuleIDA, c.RuleIDB, c.OverlapScore, c.Resolution)
		}
		for _, warning := range rep.Warnings {
			fmt.Fprintf(w, "  %s: ⚠ %s\n", rep.TenantID, warning)
		}
		if verbose {
			fmt.Fprintf(w, "  %s: cache key %s\n", rep.TenantID, rep.CacheKey)
		}
	}
}
