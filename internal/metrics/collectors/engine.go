package collectors

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
)

const namespace = "powchain"

// EngineSource is the part of the consensus engine read by EngineCollector.
type EngineSource interface {
	Chain() models.Chain
	PendingTransactions() []models.Transaction
	Peers() []string
	Stats() consensus.Stats
}

// EngineCollector exposes the chain, pool and resolution state of a running node.
type EngineCollector struct {
	source EngineSource

	chainLength       *prometheus.Desc
	pendingTxs        *prometheus.Desc
	peers             *prometheus.Desc
	blocksMined       *prometheus.Desc
	chainReplacements *prometheus.Desc
	peerRejections    *prometheus.Desc
}

func NewEngineCollector(source EngineSource) *EngineCollector {
	return &EngineCollector{
		source: source,
		chainLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "chain_length"),
			"Number of blocks in the local chain, genesis included",
			nil, nil,
		),
		pendingTxs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_transactions"),
			"Number of transactions waiting for the next block",
			nil, nil,
		),
		peers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "peers"),
			"Number of known peers",
			nil, nil,
		),
		blocksMined: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "blocks", "mined_total"),
			"Blocks mined by this node",
			nil, nil,
		),
		chainReplacements: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "replacements_total"),
			"Times the local chain was replaced by a longer peer chain",
			nil, nil,
		),
		peerRejections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "peer", "rejections_total"),
			"Peer chains skipped during conflict resolution",
			[]string{"status"}, nil,
		),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.chainLength
	ch <- c.pendingTxs
	ch <- c.peers
	ch <- c.blocksMined
	ch <- c.chainReplacements
	ch <- c.peerRejections
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.chainLength, prometheus.GaugeValue, float64(c.source.Chain().Len()))
	ch <- prometheus.MustNewConstMetric(c.pendingTxs, prometheus.GaugeValue, float64(len(c.source.PendingTransactions())))
	ch <- prometheus.MustNewConstMetric(c.peers, prometheus.GaugeValue, float64(len(c.source.Peers())))
	ch <- prometheus.MustNewConstMetric(c.blocksMined, prometheus.CounterValue, float64(stats.BlocksMined))
	ch <- prometheus.MustNewConstMetric(c.chainReplacements, prometheus.CounterValue, float64(stats.ChainReplacements))
	ch <- prometheus.MustNewConstMetric(c.peerRejections, prometheus.CounterValue, float64(stats.PeersRejected), consensus.PeerRejected.String())
	ch <- prometheus.MustNewConstMetric(c.peerRejections, prometheus.CounterValue, float64(stats.PeersUnreachable), consensus.PeerUnreachable.String())
}
