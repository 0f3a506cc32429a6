package cmd

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/database"
	"canvas-bulkflow/internal/models"
	"canvas-bulkflow/internal/pipeline"
)

// newApiClient builds the authenticated service client over the global
// transport so --log-api applies to every call.
func newApiClient() *api.Client {
	httpClient := &http.Client{
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
		Transport: globalHttpTransport,
	}
	return api.NewClient(globalConfig.BaseUrl, globalConfig.Token, httpClient)
}

func rowDelay() time.Duration {
	return time.Duration(globalConfig.RowDelayMs) * time.Millisecond
}

// openLedger opens the local transfer history. A broken ledger never blocks a
// run; it degrades to a nil ledger and a warning.
func openLedger() *database.Ledger {
	path := globalConfig.LedgerPath
	if path == "" {
		path = "bulkflow.db"
	}
	ledger, err := database.Open(path)
	if err != nil {
		log.WithError(err).Warnf("Could not open transfer ledger at %s, history disabled for this run", path)
		return nil
	}
	return ledger
}

// recordOutcomes appends one ledger entry per processed row.
func recordOutcomes(ledger *database.Ledger, direction string, outcomes []pipeline.Outcome) {
	if ledger == nil {
		return
	}
	now := time.Now().Unix()
	for _, o := range outcomes {
		entry := models.LedgerEntry{
			Direction: direction,
			FileID:    o.FileID,
			Name:      o.Name,
			Outcome:   o.Kind.String(),
			Bytes:     o.Bytes,
			Timestamp: now,
		}
		if err := ledger.Record(entry); err != nil {
			log.WithError(err).Warn("Failed to record ledger entry")
		}
	}
}

func countFailed(outcomes []pipeline.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Kind.Failed() {
			failed++
		}
	}
	return failed
}
