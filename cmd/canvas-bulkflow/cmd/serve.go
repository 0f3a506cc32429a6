package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"canvas-bulkflow/internal/jobs"
	"canvas-bulkflow/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front-end",
	Long: `Serves a small web UI for running download and upload batches from
the browser. Each run becomes an asynchronous job the page polls for
progress; finished jobs are kept for the configured retention window.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if v := viper.GetString("serve.listen"); v != "" {
		globalConfig.ListenAddr = v
	}

	ledger := openLedger()
	if ledger != nil {
		defer ledger.Close()
	}

	retention := time.Duration(globalConfig.JobRetentionMins) * time.Minute
	server := &web.Server{
		Config:    globalConfig,
		Registry:  jobs.NewRegistry(retention),
		Ledger:    ledger,
		Transport: globalHttpTransport,
	}

	if globalConfig.Token == "" {
		log.Warn("No API token configured; jobs will need a token pasted into the form.")
	}
	return server.ListenAndServe()
}
