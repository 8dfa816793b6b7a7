package ratesupload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stagedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartad_rate_upload_rows_total",
		Help: "Rows staged from rate uploads, by validation status.",
	}, []string{"status"})

	committedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartad_rate_commit_rows_total",
		Help: "Rows processed by rate commits, by final status.",
	}, []string{"final_status"})

	commitBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartad_rate_commit_batches_total",
		Help: "Rate commit calls, by outcome.",
	}, []string{"outcome"})

	purgedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartad_rate_staging_purged_total",
		Help: "Expired staging rows deleted by the purge job.",
	})
)
