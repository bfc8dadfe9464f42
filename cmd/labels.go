package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmfacilities/internal/facility"
	"github.com/wegman-software/osmfacilities/internal/mapping"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the label columns of a tag mapping",
	Long: `Load and validate a tag mapping and print its label space: one line per
label column with its bit index and the activity types it expands to.`,
	Args: cobra.NoArgs,
	RunE: runLabels,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.Flags().StringVarP(&cfg.MappingFile, "mapping", "m", cfg.MappingFile, "Tag mapping file (YAML or JSON)")
	labelsCmd.MarkFlagRequired("mapping")
}

func runLabels(cmd *cobra.Command, args []string) error {
	m, err := mapping.Load(cfg.MappingFile)
	if err != nil {
		return err
	}
	ls := mapping.NewLabelSpace(m)

	out := cmd.OutOrStdout()
	for i, name := range ls.Names() {
		fmt.Fprintf(out, "%3d  %-10s  %v\n", i, name, facility.Activities([]string{name}))
	}
	return nil
}
