package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/resume-ingest/internal/server"
)

var (
	submitDir        string
	submitExts       []string
	submitSkipHidden bool
	submitQuiet      bool
	exportOut        string
)

var submitCmd = &cobra.Command{
	Use:   "submit [files...]",
	Short: "Upload resume files as one batch",
	Long: `Uploads the given files (and, with --dir, every matching file under a
directory) as one batch. Progress is printed as it arrives; a summary follows.
Interrupting the command abandons the batch: no further groups are dispatched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitDir == "" && len(args) == 0 {
			return fmt.Errorf("nothing to submit: pass files or --dir")
		}
		req := server.SubmitRequest{
			Paths:      absPaths(args),
			Directory:  absPath(submitDir),
			SkipHidden: submitSkipHidden,
			Extensions: submitExts,
		}
		final, err := be.SubmitBatch(cmd.Context(), req, func(u server.BatchUpdate) {
			if submitQuiet || u.Terminal() {
				return
			}
			fmt.Fprintf(os.Stderr, "[%s] %d/%d (%.0f%%) ok=%d updated=%d failed=%d %s\n",
				u.Stage, u.Completed, u.Total, u.Percent(), u.Successful, u.Updated, u.Failed, u.CurrentFile)
		})
		if err != nil {
			if final.Total > 0 {
				fmt.Println(final.Summary)
			}
			return err
		}
		fmt.Println(final.Summary)
		return nil
	},
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and manage failed uploads",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed uploads, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		list, err := be.ListFailures(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No failed uploads.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFILE\tKIND\tRETRIES\tLAST FAILED\tMESSAGE")
		for _, f := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				f.ID, f.DisplayName, f.ErrorKind, f.RetryCount, f.UpdatedAt.Local().Format(time.DateTime), f.ErrorMessage)
		}
		return tw.Flush()
	},
}

var failuresRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Resubmit one failed upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := be.RetryFailure(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if o.OK() {
			fmt.Printf("%s: %s\n", args[0], o.Status)
			return nil
		}
		fmt.Printf("%s: still failing (%s): %s\n", args[0], o.ErrorKind, o.ErrorMessage)
		return nil
	},
}

var failuresRetryAllCmd = &cobra.Command{
	Use:   "retry-all",
	Short: "Resubmit every failed upload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		results, err := be.RetryAllFailures(cmd.Context())
		if err != nil {
			return err
		}
		var recovered int
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Printf("%s: %s\n", r.DisplayName, r.Error)
			case r.Outcome.OK():
				recovered++
				fmt.Printf("%s: %s\n", r.DisplayName, r.Outcome.Status)
			default:
				fmt.Printf("%s: still failing (%s)\n", r.DisplayName, r.Outcome.ErrorKind)
			}
		}
		fmt.Printf("Recovered %d of %d.\n", recovered, len(results))
		return nil
	},
}

var failuresRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Dismiss one failed upload without retrying",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return be.RemoveFailure(cmd.Context(), args[0])
	},
}

var failuresClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Dismiss every failed upload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := be.ClearFailures(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d failure(s).\n", n)
		return nil
	},
}

var failuresExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the failure list to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		xlsx, err := be.ExportFailures(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, xlsx, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Printf("Wrote %s\n", exportOut)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the candidate count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := be.CurrentCount(cmd.Context())
		if err != nil && st.LastError == "" {
			return err
		}
		fmt.Printf("candidates: %d (authoritative %d)\n", st.Displayed, st.Authoritative)
		if st.LastError != "" {
			fmt.Printf("last refresh failed: %s\n", st.LastError)
		}
		return nil
	},
}

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Show session totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, err := be.Totals(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("batches=%d new=%d updated=%d failed=%d retried=%d recovered=%d\n",
			t.Batches, t.Successful, t.Updated, t.Failed, t.Retried, t.Recovered)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitDir, "dir", "", "directory to scan for resumes")
	submitCmd.Flags().StringSliceVar(&submitExts, "ext", nil, "allowed extensions (default pdf,doc,docx,rtf,txt)")
	submitCmd.Flags().BoolVar(&submitSkipHidden, "skip-hidden", true, "skip hidden files and directories")
	submitCmd.Flags().BoolVarP(&submitQuiet, "quiet", "q", false, "print only the summary")

	failuresExportCmd.Flags().StringVarP(&exportOut, "out", "o", "failures.xlsx", "output XLSX path")

	failuresCmd.AddCommand(failuresListCmd, failuresRetryCmd, failuresRetryAllCmd,
		failuresRemoveCmd, failuresClearCmd, failuresExportCmd)
}

// absPath resolves p against the working directory so a remote daemon on the
// same host sees the same file.
func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func absPaths(ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, absPath(p))
	}
	return out
}
