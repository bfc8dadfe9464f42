package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wegman-software/osmfacilities/internal/config"
	"github.com/wegman-software/osmfacilities/internal/logger"
)

// EnvPrefix is the prefix of environment variables overriding flags,
// e.g. OSMFAC_DB_HOST for --db-host
const EnvPrefix = "OSMFAC"

var (
	cfg        = config.DefaultConfig()
	configFile string
	bboxStr    string
)

var rootCmd = &cobra.Command{
	Use:   "osmfacilities",
	Short: "Extract activity facilities from OpenStreetMap data",
	Long: `osmfacilities turns OSM entities into activity facilities for traffic simulation.

Stages:
  - features:   classify buildings, landuse and points of interest, fold small
                features into their containers and write a Parquet feature store
  - facilities: sample every stored feature, map it to the nearest network link
                and write one facility per link

Flags can also be set through OSMFAC_* environment variables or a config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfig(cmd); err != nil {
			return err
		}

		logger.Init(logger.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
		return nil
	},
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVarP(&configFile, "config", "c", "", "Config file (YAML, JSON or TOML) with flag values")

	// Global flags
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	fs.StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for the feature store and facilities file")
	fs.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")
	fs.StringVar(&cfg.SourceCRS, "source-crs", cfg.SourceCRS, "CRS of the OSM input")
	fs.StringVar(&cfg.TargetCRS, "target-crs", cfg.TargetCRS, "Planar CRS of features and network")
	fs.StringVar(&cfg.FeaturesFile, "features-file", cfg.FeaturesFile, "Feature store, relative to the output directory")

	// Logging and metrics flags
	fs.StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging, 0 disables it")

	// Database flags (persistent so they're available to all subcommands)
	fs.BoolVar(&cfg.DBLoad, "db-load", false, "Also load features and facilities into PostGIS")
	fs.BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop existing tables before loading")
	fs.StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	fs.IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	fs.StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	fs.StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	fs.StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	fs.StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

// applyConfig fills every flag not given on the command line from the
// environment or the config file
func applyConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		val := v.GetString(f.Name)
		if f.Value.Type() == "stringSlice" {
			val = strings.Join(v.GetStringSlice(f.Name), ",")
		}
		if err := cmd.Flags().Set(f.Name, val); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s: %w", f.Name, err))
		}
	})
	if len(errs) > 0 {
		return errs[0]
	}

	bbox, err := config.ParseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	cfg.BBox = bbox
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
