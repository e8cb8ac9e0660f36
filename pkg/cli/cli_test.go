package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
)

type conflictTable [][]string

func (c conflictTable) Header() []string { return []string{"TYPE", "RULE A", "RULE B"} }
func (c conflictTable) Rows() [][]string { return c }

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"contention", &policy.ContentionError{TenantID: "acme"}, ExitContention},
		{"wrapped contention", NewCommandError("compile", &policy.ContentionError{TenantID: "acme"}), ExitContention},
		{"policy validation", &policy.ValidationError{TenantID: "acme"}, ExitInvalid},
		{"config validation", fmt.Errorf("load: %w", config.ValidationError{}), ExitInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("disk full")
	err := NewCommandError("compile", inner)

	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to its cause")
	}
	if got := err.Error(); got != "command compile failed: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatters(t *testing.T) {
	table := conflictTable{{"edge_case_overlap", "a", "b"}}

	tests := []struct {
		name   string
		format OutputFormat
		data   any
		want   []string
	}{
		{"text table", FormatText, table, []string{"TYPE", "edge_case_overlap  a"}},
		{"text value", FormatText, "checksum abc", []string{"checksum abc"}},
		{"json", FormatJSON, map[string]string{"checksum": "abc"}, []string{`"checksum": "abc"`}},
		{"csv", FormatCSV, table, []string{"TYPE,RULE A,RULE B\nedge_case_overlap,a,b\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).FormatTo(&buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output %q does not contain %q", buf.String(), want)
				}
			}
		})
	}
}

func TestCSVFormatter_RequiresTable(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, 42); err == nil {
		t.Error("expected error for non-table data")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(4)
	p.Update(2)
	p.Error(errors.New("globex.yaml: invalid"))
	p.Finish()

	out := buf.String()
	for _, want := range []string{"2/4", "4/4", "globex.yaml: invalid", "(1 failed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)

	p.Start(0)
	p.Update(0)
	p.Finish()

	if buf.Len() != 0 {
		t.Errorf("zero-total progress wrote %q", buf.String())
	}
}

func TestSignalContext(t *testing.T) {
	ctx, stop := SignalContext(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}
