package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "recorder"
)

// Container kinds
const (
	ContainerSuite   = "suite"
	ContainerContext = "context"
	ContainerFixture = "fixture"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_total",
		Help:      "Count of engine callbacks handled",
	}, []string{
		"event",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of test cases flushed, by status",
	}, []string{
		"status",
	})

	containersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "containers_total",
		Help:      "Count of containers opened, by kind",
	}, []string{
		"kind",
	})

	contextRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "context_refreshes_total",
		Help:      "Count of execution contexts discarded and replaced",
	}, []string{
		"reason",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordEvent(event string) {
	if Debug {
		log.Debug("metric inc",
			"m", "events_total",
			"event", event)
	}
	eventsTotal.WithLabelValues(event).Inc()
}

func RecordCase(status types.Status) {
	if !status.IsValid() {
		log.Error("RecordCase - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"status", status)
	}
	casesTotal.WithLabelValues(string(status)).Inc()
}

func RecordContainer(kind string) {
	if Debug {
		log.Debug("metric inc",
			"m", "containers_total",
			"kind", kind)
	}
	containersTotal.WithLabelValues(kind).Inc()
}

func RecordContextRefresh(reason string) {
	if Debug {
		log.Debug("metric inc",
			"m", "context_refreshes_total",
			"reason", reason)
	}
	contextRefreshesTotal.WithLabelValues(reason).Inc()
}
