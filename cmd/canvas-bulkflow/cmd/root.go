package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/config"
	"canvas-bulkflow/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// envFileFlag holds the path to the key=value environment file
var envFileFlag string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// tokenFlag holds the value of the --token flag
var tokenFlag string

// baseUrlFlag holds the value of the --base-url flag
var baseUrlFlag string

// delayFlag holds the value of the --delay-ms flag
var delayFlag int

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// logLevel and logFormat configure logrus before any command runs
var logLevel string
var logFormat string

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canvas-bulkflow",
	Short: "Batch download and replace Canvas course PDFs",
	Long: `Canvas BulkFlow moves PDFs between a local folder and a Canvas
instance in bulk, driven by an Ally accessibility-report CSV: download the
scanned PDFs it lists, or upload OCRed replacements back over the originals.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			log.Debug("Closing API logging transport file.")
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", config.EnvFileName, "key=value file loaded into the environment")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Canvas API token (overrides config and CANVAS_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&baseUrlFlag, "base-url", "", "Canvas base URL (overrides config and CANVAS_BASE_URL)")
	rootCmd.PersistentFlags().IntVar(&delayFlag, "delay-ms", -1, "Delay between rows in ms (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	// Hook to configure logging before any command runs
	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadGlobalConfig loads the env file and configuration, applies flag
// overrides, and sets up the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(envFileFlag); err != nil {
		log.WithError(err).Warnf("Failed to load env file %s", envFileFlag)
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// A malformed config file is fatal: running a batch against the wrong
		// instance or folder is worse than refusing to start.
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("token") && tokenFlag != "" {
		globalConfig.Token = tokenFlag
		log.Debug("Overriding Token from --token flag")
	}

	if cmd.Flags().Changed("base-url") && baseUrlFlag != "" {
		globalConfig.BaseUrl = baseUrlFlag
		log.Debugf("Overriding BaseUrl based on --base-url flag: %s", baseUrlFlag)
	}

	if cmd.Flags().Changed("delay-ms") {
		if delayFlag >= 0 {
			globalConfig.RowDelayMs = delayFlag
			log.Debugf("Overriding RowDelayMs based on --delay-ms flag: %d ms", delayFlag)
		} else {
			log.Warnf("--delay-ms flag provided with invalid value %d, using config value: %d ms", delayFlag, globalConfig.RowDelayMs)
		}
	}

	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
			log.Debugf("Overriding ApiClientTimeoutSec based on --api-timeout flag: %d sec", apiTimeoutFlag)
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	// --- Setup Global HTTP Transport ---
	baseTransport := http.DefaultTransport
	globalHttpTransport = baseTransport
	if globalConfig.LogApiRequests {
		logFilePath := "api.log"
		if globalConfig.OutputFolder != "" {
			if _, statErr := os.Stat(globalConfig.OutputFolder); statErr == nil {
				logFilePath = filepath.Join(globalConfig.OutputFolder, logFilePath)
			}
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}
