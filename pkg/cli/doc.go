/*
Package cli provides command-line utilities shared by the ganymede
command: output formatters, tabular rendering, progress reporting, and
signal handling.

Output Formatting:

Commands answer in text or JSON. The formatter hides the difference:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Text listings use the table writer:

	tbl := cli.NewTable(os.Stdout)
	tbl.Header("ID", "KIND", "STATE")
	tbl.Row(res.ID, res.Kind, string(res.State))
	return tbl.Flush()

CSV output of decision records is handled by pkg/audit/export, not
here; the cli formats cover command results only.

Progress Reporting:

Long exports report progress to stderr so the payload stream stays
clean:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Update(done)
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
*/
package cli
