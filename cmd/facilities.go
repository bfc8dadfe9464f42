package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/pipeline"
)

var facilitiesCmd = &cobra.Command{
	Use:   "facilities",
	Short: "Map stored features onto network links and write facilities",
	Long: `Read the feature store and generate facilities:

  1. Sample points inside every stored feature (deterministic per feature id)
  2. Map each sample to the nearest network link allowing the selected mode
  3. Attach the feature to the link hit by most samples, skipping ignored link types
  4. Write one facility per link with the union of its activities

Empty link aggregates are reported and make the command exit with status 1
after all valid facilities have been written.`,
	Args: cobra.NoArgs,
	Run:  runFacilities,
}

func init() {
	rootCmd.AddCommand(facilitiesCmd)
	addFacilityFlags(facilitiesCmd.Flags())
}

func addFacilityFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&cfg.NetworkFile, "network", "n", cfg.NetworkFile, "Network file (MATSim XML or GeoJSON, optionally gzipped)")
	fs.StringVar(&cfg.FacilitiesFile, "facilities-file", cfg.FacilitiesFile, "Facilities file, relative to the output directory")
	fs.IntVar(&cfg.SamplePoints, "sample-points", cfg.SamplePoints, "Sample points per feature")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Sampling seed")
	fs.IntVar(&cfg.Precision, "precision", cfg.Precision, "Decimal places of facility coordinates")
	fs.StringVar(&cfg.NetworkMode, "mode", cfg.NetworkMode, "Transport mode links must allow")
	fs.StringSliceVar(&cfg.IgnoredLinkTypes, "ignore-link-types", cfg.IgnoredLinkTypes, "Link types never used as facility links")
}

func runFacilities(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateFacilities(); err != nil {
		exitWithError("Invalid configuration", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pipeline.RunFacilities(ctx, cfg)
	if err != nil {
		exitWithError("Facility generation failed", err)
	}

	log.Info("Facilities ready",
		zap.String("path", cfg.FacilitiesPath()),
		zap.Int("facilities", res.Stats.Facilities))
}
