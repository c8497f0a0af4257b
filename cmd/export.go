package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/store"
)

var (
	exportOut   string
	exportSince time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored reports to an xlsx workbook",
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

		filter := store.ReportFilter{Limit: 10000}
		if exportSince > 0 {
			filter.Since = time.Now().Add(-exportSince)
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "export: list reports")
		}

		if err := writeReportsWorkbook(exportOut, reports); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Exported %d reports to %s\n", len(reports), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "reports.xlsx", "output workbook path")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "only include reports newer than this (e.g. 168h); 0 means all")
	rootCmd.AddCommand(exportCmd)
}

var exportHeader = []string{
	"ID", "Status", "Category", "Confidence", "District",
	"Address", "Reporting URL", "Tracking Number", "Department",
	"Post URL", "Created",
}

// writeReportsWorkbook writes one row per report to a single-sheet workbook.
func writeReportsWorkbook(path string, reports []model.Report) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Reports")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for i := range reports {
		addReportRow(sheet, &reports[i])
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addReportRow(sheet *xlsx.Sheet, r *model.Report) {
	var (
		category   string
		confidence float64
		address    string
		formURL    string
		tracking   string
		department string
		postURL    string
	)

	if r.Classification != nil {
		category = string(r.Classification.Category)
		confidence = r.Classification.Confidence
	}
	if r.Address != nil {
		address = r.Address.Full()
	}
	if r.Discovery != nil {
		formURL = r.Discovery.URL
	}
	if r.Submission != nil {
		tracking = r.Submission.TrackingNumber
		department = r.Submission.Department
	}
	if r.Amplification != nil {
		postURL = r.Amplification.PostURL
	}

	row := sheet.AddRow()
	row.AddCell().SetString(r.ID)
	row.AddCell().SetString(string(r.Status))
	row.AddCell().SetString(category)
	row.AddCell().SetFloat(confidence)
	row.AddCell().SetString(r.District)
	row.AddCell().SetString(address)
	row.AddCell().SetString(formURL)
	row.AddCell().SetString(tracking)
	row.AddCell().SetString(department)
	row.AddCell().SetString(postURL)
	row.AddCell().SetString(r.CreatedAt.Format(time.RFC3339))
}
