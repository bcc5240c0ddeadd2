package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics.
var (
	SignOuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hallpass_signouts_total",
		Help: "Committed sign-outs by destination and path.",
	}, []string{"destination", "override"})

	SignIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hallpass_signins_total",
		Help: "Committed sign-ins.",
	})

	QuotaBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hallpass_quota_blocks_total",
		Help: "Sign-out attempts suspended pending a teacher override.",
	})

	ImportedStudents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hallpass_imported_students_total",
		Help: "Students written by bulk import.",
	})
)
