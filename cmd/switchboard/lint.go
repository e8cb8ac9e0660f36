package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/policy"
)

var lintFlags struct {
	file   string
	dir    string
	tenant string
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate policy files",
	Long: `Validate tenant policy files without publishing anything.

The lint command checks each file for:
  - YAML syntax and unknown fields
  - Structural errors (unknown status, duplicate rule IDs)
  - Rules the compiler would drop (bad trigger patterns, unknown actions,
    unknown guardrails or behavior flags), reported as warnings
  - Same-priority rule conflicts the compiler would resolve by demotion

Examples:
  # Lint single file
  switchboard lint --file policies/acme.yaml

  # Lint directory
  switchboard lint --dir policies/

  # Strict mode (dropped rules are errors)
  switchboard lint --dir policies/ --strict

  # JSON output for CI/CD
  switchboard lint --dir policies/ --format json`,
	RunE: lintPolicies,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "policy file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of policy files")
	lintCmd.Flags().StringVarP(&lintFlags.tenant, "tenant", "t", "", "tenant ID (defaults to the file name)")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// LintResult is the lint outcome for a single policy file.
type LintResult struct {
	File      string   `json:"file"`
	TenantID  string   `json:"tenantId,omitempty"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`

	err error
}

func lintPolicies(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(lintFlags.format)
	if err != nil {
		return err
	}
	files, err := policyFiles(lintFlags.file, lintFlags.dir)
	if err != nil {
		return err
	}

	results := make([]LintResult, 0, len(files))
	for _, file := range files {
		results = append(results, lintFile(cmd, file))
	}

	out := stdout(cmd)
	if format == cli.FormatText {
		printLintText(out, results)
	} else if err := cli.NewFormatter(format).FormatTo(out, results); err != nil {
		return err
	}

	var failed []error
	for _, r := range results {
		if !r.Valid {
			failed = append(failed, r.err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d policy files failed lint: %w", len(failed), len(results), errors.Join(failed...))
	}
	return nil
}

func lintFile(cmd *cobra.Command, path string) LintResult {
	result := LintResult{File: path}
	fail := func(err error) LintResult {
		result.err = err
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	tenantID, err := tenantFor(lintFlags.tenant, path)
	if err != nil {
		return fail(err)
	}
	result.TenantID = tenantID

	raw, err := policy.LoadFile(path)
	if err != nil {
		return fail(err)
	}

	res, err := compileOffline(commandContext(cmd), tenantID, raw)
	if err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				result.Errors = append(result.Errors, fe.Error())
			}
			result.err = err
			return result
		}
		return fail(err)
	}

	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, w.Error())
	}
	for _, c := range res.Conflicts {
		result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s: %s/%s (overlap %.2f): %s",
			c.Type, c.RuleIDA, c.RuleIDB, c.OverlapScore, c.Resolution))
	}

	if lintFlags.strict && len(result.Warnings) > 0 {
		result.err = fmt.Errorf("%s: %d rules would be dropped", path, len(result.Warnings))
		return result
	}
	result.Valid = true
	return result
}

func printLintText(w io.Writer, results []LintResult) {
	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
			fmt.Fprintf(w, "✓ %s\n", r.File)
		} else {
			fmt.Fprintf(w, "✗ %s\n", r.File)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    error: %s\n", e)
		}
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "    warning: %s\n", warning)
		}
		for _, c := range r.Conflicts {
			fmt.Fprintf(w, "    conflict: %s\n", c)
		}
	}
	fmt.Fprintf(w, "\n%d/%d files valid\n", valid, len(results))
}
