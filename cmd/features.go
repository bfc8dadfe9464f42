package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/pipeline"
)

var featuresCmd = &cobra.Command{
	Use:   "features <input.osm.pbf>",
	Short: "Extract labelled features from OSM data into a Parquet store",
	Long: `Classify OSM entities and write the feature store:

  1. Pass 1: Stream nodes into the node index (memory or memory-mapped file)
  2. Pass 2: Build geometries for buildings, landuse and points of interest,
     classify them in parallel and label them through the tag mapping
  3. Merge the labels of landuse areas, then of points of interest, into the
     buildings they overlap
  4. Write every labelled building and every unmerged feature to Parquet

Input may be PBF or OSM XML (optionally gzip compressed).`,
	Args: cobra.ExactArgs(1),
	Run:  runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	addExtractFlags(featuresCmd.Flags())
}

func addExtractFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&cfg.MappingFile, "mapping", "m", cfg.MappingFile, "Tag mapping file (YAML or JSON)")
	fs.StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	fs.StringVar(&cfg.FlatNodesFile, "flat-nodes", "", "Memory-mapped node index file (default: in memory)")
	fs.Float64Var(&cfg.POIBuffer, "poi-buffer", cfg.POIBuffer, "Buffer radius of point entities in target CRS units")
	fs.Float64Var(&cfg.MaxArea, "max-area", cfg.MaxArea, "Discard buildings with at least this area")
	fs.Float64Var(&cfg.MaxAssignArea, "max-assign-area", cfg.MaxAssignArea, "Buildings with at least this area receive no merged labels")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
}

func runFeatures(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.ValidateExtract(); err != nil {
		exitWithError("Invalid configuration", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pipeline.RunExtract(ctx, cfg)
	if err != nil {
		exitWithError("Feature extraction failed", err)
	}

	log.Info("Feature store ready",
		zap.String("path", cfg.FeaturesPath()),
		zap.Int64("records", res.Stats.Written),
		zap.Duration("duration", res.Stats.Duration))
}
