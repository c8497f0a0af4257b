package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runImage string
	runLat   float64
	runLon   float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single photo through the reporting pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(runImage)
		if err != nil {
			return eris.Wrapf(err, "open image %s", runImage)
		}
		ref, err := env.Images.Save(f, runImage)
		f.Close()
		if err != nil {
			return err
		}

		report, err := env.Orchestrator.Process(ctx, ref, runLat, runLon)
		if err != nil {
			return err
		}

		zap.L().Info("pipeline finished",
			zap.String("report_id", report.ID),
			zap.String("status", string(report.Status)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Summarize())
	},
}

func init() {
	runCmd.Flags().StringVar(&runImage, "image", "", "path to the photo to report (required)")
	runCmd.Flags().Float64Var(&runLat, "lat", 0, "latitude where the photo was taken")
	runCmd.Flags().Float64Var(&runLon, "lon", 0, "longitude where the photo was taken")
	_ = runCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(runCmd)
}
