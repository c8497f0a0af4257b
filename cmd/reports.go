package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/resilience"
	"github.com/civicsight/civicsight/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored damage reports",
	Long:  "Commands for listing reports, viewing a single report, and reviewing failed submissions.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List damage reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		category, _ := cmd.Flags().GetString("category")
		district, _ := cmd.Flags().GetString("district")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ReportFilter{
			Status:   model.ReportStatus(status),
			Category: model.Category(category),
			District: district,
			Limit:    limit,
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show full details of a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// -- reports dlq --

var reportsDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List failed form submissions awaiting review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListDLQEntries(ctx, resilience.DLQFilter{
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "reports dlq")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		formatDLQList(os.Stdout, entries)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("status", "", "filter by report status (done, rejected, submission_failed, ...)")
	reportsListCmd.Flags().String("category", "", "filter by damage category")
	reportsListCmd.Flags().String("district", "", "filter by district")
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")

	reportsDLQCmd.Flags().String("error-type", "", "filter by error type (transient, permanent)")
	reportsDLQCmd.Flags().Int("limit", 50, "max number of entries to display")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDLQCmd)
	rootCmd.AddCommand(reportsCmd)
}

// formatReportsList writes a tabular list of reports to w.
func formatReportsList(out io.Writer, reports []model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCATEGORY\tDISTRICT\tSTATUS\tTRACKING\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t--------\t------\t--------\t-------")

	for _, r := range reports {
		category := ""
		if r.Classification != nil {
			category = string(r.Classification.Category)
		}
		tracking := ""
		if r.Submission != nil {
			tracking = r.Submission.TrackingNumber
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			category,
			r.District,
			r.Status,
			tracking,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatDLQList writes a tabular list of dead letter entries to w.
func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREPORT\tCATEGORY\tSTAGE\tERROR\tFAILED_AT")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t-----\t-----\t---------")

	for _, e := range entries {
		errMsg := e.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		failedAt := e.LastFailedAt
		if failedAt.IsZero() {
			failedAt = e.CreatedAt
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(e.ID),
			truncateID(e.ReportID),
			e.Category,
			e.FailedStage,
			errMsg,
			failedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID shortens a uuid for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
