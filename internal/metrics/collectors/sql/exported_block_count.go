package sql

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

const ExportedBlockCountQuery = `SELECT COUNT(*), COALESCE(MAX(id), -1) FROM api.blocks`

// ExportedBlockCountCollector reports the size and tip of the exported chain.
type ExportedBlockCountCollector struct {
	db         *sql.DB
	blockCount *prometheus.Desc
	tipIndex   *prometheus.Desc
}

func NewExportedBlockCountCollector(db *sql.DB) *ExportedBlockCountCollector {
	return &ExportedBlockCountCollector{
		db: db,
		blockCount: prometheus.NewDesc(
			prometheus.BuildFQName("powchain", "exported_blocks", "total_count"),
			"Total exported block count",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
		tipIndex: prometheus.NewDesc(
			prometheus.BuildFQName("powchain", "exported_blocks", "tip_index"),
			"Index of the highest exported block, -1 when empty",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *ExportedBlockCountCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blockCount
	ch <- c.tipIndex
}

func (c *ExportedBlockCountCollector) Collect(ch chan<- prometheus.Metric) {
	var count, tip int64
	err := c.db.QueryRow(ExportedBlockCountQuery).Scan(&count, &tip)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.blockCount, err)
		ch <- prometheus.NewInvalidMetric(c.tipIndex, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.blockCount, prometheus.GaugeValue, float64(count))
	ch <- prometheus.MustNewConstMetric(c.tipIndex, prometheus.GaugeValue, float64(tip))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB) (prometheus.Collector, error) {
		return NewExportedBlockCountCollector(db), nil
	})
}
