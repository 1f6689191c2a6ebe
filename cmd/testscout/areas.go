package main

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/app"
	"github.com/kiranshivaraju/testscout/internal/area"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/spf13/cobra"
)

func newAreasCmd(_ *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "Inspect the functional area catalog",
	}
	cmd.AddCommand(newAreasListCmd())
	cmd.AddCommand(newAreasDetectCmd())
	return cmd
}

func loadCatalog() (*area.Catalog, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.Catalog(cfg.Corpus.AreaCatalogPath)
}

func newAreasListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the known areas in detection priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), catalog.Areas)
			}
			printAreas(cmd.OutOrStdout(), catalog.Areas)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format (text, json)")
	return cmd
}

type detectFlags struct {
	description string
	repro       string
	format      string
}

func newAreasDetectCmd() *cobra.Command {
	flags := &detectFlags{}
	cmd := &cobra.Command{
		Use:   "detect [text...]",
		Short: "Detect the areas a bug description belongs to",
		Long: `Detect counts area keyword hits in the bug text and recommends the
areas worth searching.

Examples:
  testscout areas detect "posting a split disbursement fails after release"
  testscout areas detect --description "invoice markup is wrong" --repro "1. open prebill"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(append([]string{flags.description, flags.repro}, args...), " "))
			if text == "" {
				return fmt.Errorf("bug text is required: pass it as arguments or with --description")
			}

			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			dets := catalog.Detect(text)
			recommended := area.Recommend(dets)

			if flags.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Detections  []area.Detection `json:"detections"`
					Recommended []string         `json:"recommended_areas"`
				}{dets, recommended})
			}
			printDetections(cmd.OutOrStdout(), dets, recommended)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.description, "description", "d", "", "Bug description")
	f.StringVarP(&flags.repro, "repro", "r", "", "Reproduction steps")
	f.StringVarP(&flags.format, "format", "f", formatText, "Output format (text, json)")
	return cmd
}
