package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The subcommand options are read through viper, so values can arrive either
// from config-file keys or from the bound flags, flags winning once set.

func TestDownloadOptionsFallThroughToConfigKeys(t *testing.T) {
	viper.SetDefault("download.output_folder", "ConfiguredDownloads")
	assert.Equal(t, "ConfiguredDownloads", viper.GetString("download.output_folder"))

	require.NoError(t, downloadCmd.Flags().Set("output-folder", "FlagDownloads"))
	assert.Equal(t, "FlagDownloads", viper.GetString("download.output_folder"))
}

func TestUploadOptionsFallThroughToConfigKeys(t *testing.T) {
	viper.SetDefault("upload.ocr_folder", "ConfiguredOCR")
	assert.Equal(t, "ConfiguredOCR", viper.GetString("upload.ocr_folder"))

	require.NoError(t, uploadCmd.Flags().Set("ocr-folder", "FlagOCR"))
	assert.Equal(t, "FlagOCR", viper.GetString("upload.ocr_folder"))

	require.NoError(t, uploadCmd.Flags().Set("csv", "manifest.csv"))
	assert.Equal(t, "manifest.csv", viper.GetString("upload.csv"))
}

func TestServeListenBinding(t *testing.T) {
	assert.Equal(t, "", viper.GetString("serve.listen"))
	require.NoError(t, serveCmd.Flags().Set("listen", "0.0.0.0:8080"))
	assert.Equal(t, "0.0.0.0:8080", viper.GetString("serve.listen"))
}
