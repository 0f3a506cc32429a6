package cmd

import (
	"fmt"
	"os"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"canvas-bulkflow/internal/downloader"
	"canvas-bulkflow/internal/manifest"
	"canvas-bulkflow/internal/pipeline"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download scanned PDFs listed in an Ally report CSV",
	Long: `Reads the accessibility-report CSV, keeps rows that are PDFs flagged
as scanned, and downloads each one into the output folder. Rows whose
sanitized filename collides with another row are all skipped, so nothing is
silently overwritten.`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("csv", "f", "", "Path to the Ally report CSV (required)")
	downloadCmd.Flags().StringP("output-folder", "o", "", "Folder to download into (overrides config)")
	downloadCmd.Flags().String("file-id-column", "", "CSV column holding the Canvas file id (overrides config)")
	downloadCmd.Flags().String("filename-column", "", "CSV column holding the target filename (overrides config)")
	_ = downloadCmd.MarkFlagRequired("csv")

	viper.BindPFlag("download.csv", downloadCmd.Flags().Lookup("csv"))
	viper.BindPFlag("download.output_folder", downloadCmd.Flags().Lookup("output-folder"))
	viper.BindPFlag("download.file_id_column", downloadCmd.Flags().Lookup("file-id-column"))
	viper.BindPFlag("download.filename_column", downloadCmd.Flags().Lookup("filename-column"))
}

func runDownload(cmd *cobra.Command, args []string) error {
	if globalConfig.Token == "" {
		return fmt.Errorf("no API token provided (set Token in config, CANVAS_API_TOKEN, or --token)")
	}

	// Read through viper so the flag bindings carry: a bound flag wins, an
	// unset one falls through to any value viper knows for the key.
	csvPath := viper.GetString("download.csv")
	if v := viper.GetString("download.output_folder"); v != "" {
		globalConfig.OutputFolder = v
	}
	if v := viper.GetString("download.file_id_column"); v != "" {
		globalConfig.FileIdColumn = v
	}
	if v := viper.GetString("download.filename_column"); v != "" {
		globalConfig.FilenameColumn = v
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("cannot open CSV %s: %w", csvPath, err)
	}
	defer f.Close()

	rows, duplicates := manifest.LoadFiltered(f, manifest.Options{
		FileIdColumn:   globalConfig.FileIdColumn,
		FilenameColumn: globalConfig.FilenameColumn,
	}, manifest.ScannedPDF)
	log.Infof("Found %d scanned PDF rows in %s", len(rows), csvPath)

	ledger := openLedger()
	if ledger != nil {
		defer ledger.Close()
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	client := newApiClient()
	fetcher := &pipeline.Fetcher{
		Client:       client,
		Downloader:   downloader.NewDownloader(client.HttpClient, globalConfig.Token),
		OutputFolder: globalConfig.OutputFolder,
		Delay:        rowDelay(),
		OnProgress: func(current, total int, message string) {
			fmt.Fprintf(writer, "Processing %d/%d: %s\n", current, total, message)
		},
		Log: func(line string) {
			fmt.Fprintln(writer.Bypass(), line)
		},
	}

	outcomes, err := fetcher.Run(rows, duplicates)
	if err != nil {
		return err
	}
	recordOutcomes(ledger, "download", outcomes)

	if failed := countFailed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d rows failed", failed, len(outcomes))
	}
	return nil
}
