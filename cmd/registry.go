package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage custom field definitions",
}

var registryLoadFile string

var registryLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load custom field definitions from a YAML or JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		defs, err := registry.LoadDefinitionsFromFile(registryLoadFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.SaveCustomFieldDefinitions(ctx, defs)
		if err != nil {
			return eris.Wrap(err, "registry load")
		}

		zap.L().Info("custom field definitions loaded",
			zap.String("file", registryLoadFile),
			zap.Int("definitions", len(defs)),
			zap.Int64("rows", n),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loaded %d custom field definitions\n", len(defs))
		return nil
	},
}

func init() {
	registryLoadCmd.Flags().StringVar(&registryLoadFile, "file", "", "definitions file (required)")
	_ = registryLoadCmd.MarkFlagRequired("file")
	registryCmd.AddCommand(registryLoadCmd)
	rootCmd.AddCommand(registryCmd)
}
