package cmd

import (
	"fmt"
	"os"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"canvas-bulkflow/internal/manifest"
	"canvas-bulkflow/internal/pipeline"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Replace Canvas files with locally OCRed PDFs",
	Long: `Reads an upload manifest CSV and, for each row, replaces the remote
Canvas file with the OCRed copy from the local OCR folder. Only files living
in course folders are replaced; the remote display name is kept.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringP("csv", "f", "", "Path to the upload manifest CSV (required)")
	uploadCmd.Flags().String("ocr-folder", "", "Folder holding the OCRed PDFs (overrides config)")
	uploadCmd.Flags().String("file-id-column", "", "CSV column holding the Canvas file id (overrides config)")
	uploadCmd.Flags().String("file-path-column", "", "CSV column holding the local OCRed file path (overrides config)")
	_ = uploadCmd.MarkFlagRequired("csv")

	viper.BindPFlag("upload.csv", uploadCmd.Flags().Lookup("csv"))
	viper.BindPFlag("upload.ocr_folder", uploadCmd.Flags().Lookup("ocr-folder"))
	viper.BindPFlag("upload.file_id_column", uploadCmd.Flags().Lookup("file-id-column"))
	viper.BindPFlag("upload.file_path_column", uploadCmd.Flags().Lookup("file-path-column"))
}

func runUpload(cmd *cobra.Command, args []string) error {
	if globalConfig.Token == "" {
		return fmt.Errorf("no API token provided (set Token in config, CANVAS_API_TOKEN, or --token)")
	}

	csvPath := viper.GetString("upload.csv")
	if v := viper.GetString("upload.ocr_folder"); v != "" {
		globalConfig.OcrFolder = v
	}
	if v := viper.GetString("upload.file_id_column"); v != "" {
		globalConfig.OcrFileIdColumn = v
	}
	if v := viper.GetString("upload.file_path_column"); v != "" {
		globalConfig.OcrFilePathColumn = v
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("cannot open CSV %s: %w", csvPath, err)
	}
	defer f.Close()

	rows := manifest.Load(f, manifest.Options{
		FileIdColumn:   globalConfig.OcrFileIdColumn,
		FilenameColumn: globalConfig.OcrFilePathColumn,
	})
	log.Infof("Found %d rows in %s", len(rows), csvPath)

	ledger := openLedger()
	if ledger != nil {
		defer ledger.Close()
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	replacer := &pipeline.Replacer{
		Client:    newApiClient(),
		OcrFolder: globalConfig.OcrFolder,
		Delay:     rowDelay(),
		OnProgress: func(current, total int, message string) {
			fmt.Fprintf(writer, "Processing %d/%d: %s\n", current, total, message)
		},
		Log: func(line string) {
			fmt.Fprintln(writer.Bypass(), line)
		},
	}

	outcomes := replacer.Run(rows)
	recordOutcomes(ledger, "upload", outcomes)

	if failed := countFailed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d rows failed", failed, len(outcomes))
	}
	return nil
}
