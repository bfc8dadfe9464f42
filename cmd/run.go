package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <input.osm.pbf>",
	Short: "Run feature extraction and facility generation",
	Long: `Run both stages back to back. The feature store is still written,
facility generation works on the extracted features in memory.`,
	Args: cobra.ExactArgs(1),
	Run:  runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addExtractFlags(runCmd.Flags())
	addFacilityFlags(runCmd.Flags())
}

func runAll(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("Invalid configuration", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	extracted, facs, err := pipeline.Run(ctx, cfg)
	if err != nil {
		exitWithError("Run failed", err)
	}

	log.Info("Run complete",
		zap.String("features", cfg.FeaturesPath()),
		zap.Int64("records", extracted.Stats.Written),
		zap.String("facilities", cfg.FacilitiesPath()),
		zap.Int("facility_count", facs.Stats.Facilities),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
}
