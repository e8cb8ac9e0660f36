/*
Package cli provides helpers shared by the switchboard commands.

Output formatting renders command results as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, report); err != nil {
		return err
	}

Results that implement Table render as aligned columns in text mode and as
rows in CSV mode.

Progress reporting is used when compiling a directory of tenant policies:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(len(files))
	for i, f := range files {
		// compile f
		progress.Update(i + 1)
	}
	progress.Finish()

ExitCode maps command errors to process exit codes, and SignalContext
cancels a context on SIGINT or SIGTERM.
*/
package cli
