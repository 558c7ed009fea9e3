package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	labels = []string{"group", "topic", "partition"}

	lagDesc = prometheus.NewDesc("offsetmon_consumer_lag",
		"Log-end offset minus committed offset. Negative while the log-end offset is stale.", labels, nil)
	committedDesc = prometheus.NewDesc("offsetmon_committed_offset",
		"Last offset committed by the group.", labels, nil)
	logEndDesc = prometheus.NewDesc("offsetmon_log_end_offset",
		"Newest offset of the partition.", labels, nil)
)

// LagCollector exports the current offsets of every group on each scrape.
type LagCollector struct {
	source Source
}

func NewLagCollector(source Source) *LagCollector {
	return &LagCollector{source: source}
}

func (c *LagCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- lagDesc
	ch <- committedDesc
	ch <- logEndDesc
}

func (c *LagCollector) Collect(ch chan<- prometheus.Metric) {
	reader := c.source()
	for _, group := range reader.ListAllGroups() {
		for _, rec := range reader.GroupInfo(group).Offsets {
			values := []string{rec.Group, rec.Topic, strconv.Itoa(int(rec.Partition))}
			ch <- prometheus.MustNewConstMetric(lagDesc, prometheus.GaugeValue, float64(rec.Lag()), values...)
			ch <- prometheus.MustNewConstMetric(committedDesc, prometheus.GaugeValue, float64(rec.CommittedOffset), values...)
			ch <- prometheus.MustNewConstMetric(logEndDesc, prometheus.GaugeValue, float64(rec.LogEndOffset), values...)
		}
	}
}
