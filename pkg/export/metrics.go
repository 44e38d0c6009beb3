package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recordsTotal counts records by outcome
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readwise_export_records_total",
			Help: "Records handled by the exporter by format and outcome",
		},
		[]string{"format", "outcome"}, // outcome: "written", "skipped"
	)

	// indexedRecords tracks the size of the dedup index built from the existing file
	indexedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readwise_export_indexed_records",
			Help: "Records indexed from the existing output file",
		},
		[]string{"format"},
	)
)
