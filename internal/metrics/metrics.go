// Package metrics records prometheus metrics about update runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const metricNamespace = "appwatch"

const (
	runsMetricName    = "runs_total"
	commitsMetricName = "commits_total"
	updatesMetricName = "updates_detected_total"
)

const (
	triggerLabel = "trigger"
	resultLabel  = "result"
	storeLabel   = "store"
)

type ResultLabelVal string

const (
	ResultLabelSuccessVal  ResultLabelVal = "success"
	ResultLabelNoChangeVal ResultLabelVal = "no_change"
	ResultLabelFailureVal  ResultLabelVal = "failure"
)

type metricCollector struct {
	logger  *zap.Logger
	runs    *prometheus.CounterVec
	commits prometheus.Counter
	updates *prometheus.CounterVec
}

var collector = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named("metrics"),
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of update runs by trigger and result",
			},
			[]string{triggerLabel, resultLabel},
		),
		commits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      commitsMetricName,
				Help:      "count of created and pushed commits",
			},
		),
		updates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      updatesMetricName,
				Help:      "count of detected app updates by store",
			},
			[]string{storeLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		zap.Error(err),
	)
}

func RunsInc(trigger string, result ResultLabelVal) {
	cnt, err := collector.runs.GetMetricWith(prometheus.Labels{
		triggerLabel: trigger,
		resultLabel:  string(result),
	})
	if err != nil {
		collector.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
}

func CommitsInc() {
	collector.commits.Inc()
}

func UpdatesDetectedInc(store string) {
	cnt, err := collector.updates.GetMetricWith(prometheus.Labels{
		storeLabel: store,
	})
	if err != nil {
		collector.logGetMetricFailed(updatesMetricName, err)
		return
	}

	cnt.Inc()
}
