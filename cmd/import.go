package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/fetcher"
	"github.com/sells-group/leadsync/internal/ingest"
)

var (
	importFile     string
	importURL      string
	importToken    string
	importUser     string
	importKeepFile bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a lead export document",
	Long:  "Reads a lead export ({\"leadsData\": [...]}) from --file or --url and reconciles every record into contacts, custom field values and tags on behalf of --user.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		path, keep := importFile, importKeepFile
		if importURL != "" {
			f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				BearerToken: importToken,
				MaxBytes:    int64(cfg.Import.MaxUploadMB) << 20,
			})
			downloaded, _, err := f.DownloadToDir(ctx, importURL, cfg.Import.TempDir)
			if err != nil {
				return err
			}
			path, keep = downloaded, false
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := ingest.New(st, ingest.FromImportConfig(cfg.Import))
		summary, err := engine.ImportFile(ctx, importUser, path, keep)
		if summary != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(summary); encErr != nil {
				return eris.Wrap(encErr, "write summary")
			}
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("source", firstNonEmpty(importURL, importFile)),
			zap.Int("total", summary.TotalRecords),
			zap.Int("inserted", summary.InsertedRecords),
		)
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the lead export JSON")
	importCmd.Flags().StringVar(&importURL, "url", "", "download the lead export from this URL")
	importCmd.Flags().StringVar(&importToken, "bearer-token", "", "bearer token sent with --url")
	importCmd.Flags().StringVar(&importUser, "user", "", "acting user id that owns created tags and values")
	importCmd.Flags().BoolVar(&importKeepFile, "keep-file", true, "keep the --file document after import")
	importCmd.MarkFlagsMutuallyExclusive("file", "url")
	importCmd.MarkFlagsOneRequired("file", "url")
	rootCmd.AddCommand(importCmd)
}
