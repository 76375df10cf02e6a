package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"forged/internal/engine"
	"forged/internal/registry"
	"forged/pkg/types"
)

func newDetectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect <locator>...",
		Short: "Show the format and kind a locator would load as",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]types.CatalogEntry, 0, len(args))
			for _, a := range args {
				rows = append(rows, types.CatalogEntry{
					Path:   a,
					Format: engine.DetectFormat(a),
					Kind:   engine.DetectKind(a),
				})
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOCATOR\tFORMAT\tKIND")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, r.Format, r.Kind)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newScanCmd(root *rootOptions) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "List loadable model files under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := loadConfig(root.configPath)
				if err != nil {
					return err
				}
				dir = cfg.ModelsDir
			}
			if dir == "" {
				return fmt.Errorf("no directory given and models_dir is not configured")
			}
			s := registry.NewScanner()
			s.Recursive = !flat
			entries, err := s.Scan(dir)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []types.CatalogEntry{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(types.CatalogResponse{Dir: dir, Entries: entries})
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Do not descend into subdirectories")
	return cmd
}
