package insight

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/segment"
)

// MaxSamplesPerCluster caps the stratified sample taken from each cluster.
const MaxSamplesPerCluster = 75

// AggregateClusters digests customer cluster assignments into labeled
// cluster metadata, population RFM averages, and a stratified sample biased
// toward high-value customers: within each cluster, customers are sorted by
// monetary value descending and the head is taken.
func (a *Aggregator) AggregateClusters(records []models.CustomerClusterRecord, labeler *segment.Labeler) *models.ClusterAggregate {
	agg := &models.ClusterAggregate{
		Clusters:        []models.ClusterMetadata{},
		SampleCustomers: []models.CustomerClusterRecord{},
	}
	if len(records) == 0 {
		return agg
	}
	agg.TotalCustomers = len(records)

	byCluster := map[int][]models.CustomerClusterRecord{}
	var recencySum, frequencySum, monetarySum, grandTotal float64
	for _, rec := range records {
		byCluster[rec.ClusterID] = append(byCluster[rec.ClusterID], rec)
		recencySum += rec.Recency
		frequencySum += rec.Frequency
		monetarySum += rec.Monetary
		grandTotal += rec.Monetary
	}
	n := float64(len(records))
	agg.RFMStats = models.RFMStats{
		AvgRecency:   recencySum / n,
		AvgFrequency: frequencySum / n,
		AvgMonetary:  monetarySum / n,
	}

	clusterIDs := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	clusters := make([]models.ClusterMetadata, 0, len(clusterIDs))
	for _, id := range clusterIDs {
		members := byCluster[id]
		var r, f, m float64
		for _, rec := range members {
			r += rec.Recency
			f += rec.Frequency
			m += rec.Monetary
		}
		count := float64(len(members))
		meta := models.ClusterMetadata{
			ClusterID:     id,
			CustomerCount: len(members),
			AvgRecency:    r / count,
			AvgFrequency:  f / count,
			AvgMonetary:   m / count,
			TotalValue:    m,
		}
		if grandTotal > 0 {
			meta.ValueShare = m / grandTotal
		}
		clusters = append(clusters, meta)
	}

	fillRadarValues(clusters)
	agg.Clusters = labeler.LabelAllClusters(clusters)

	// Stratified sampling: per-cluster head by monetary value descending.
	for _, id := range clusterIDs {
		members := make([]models.CustomerClusterRecord, len(byCluster[id]))
		copy(members, byCluster[id])
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Monetary > members[j].Monetary
		})
		if len(members) > MaxSamplesPerCluster {
			members = members[:MaxSamplesPerCluster]
		}
		agg.SampleCustomers = append(agg.SampleCustomers, members...)
	}

	a.logger.Debug("aggregated clusters",
		zap.Int("customers", agg.TotalCustomers),
		zap.Int("clusters", len(agg.Clusters)),
		zap.Int("samples", len(agg.SampleCustomers)))
	return agg
}

// fillRadarValues normalizes each cluster's RFM averages against the maxima
// across clusters, producing 0..1 values for radar rendering. Recency is
// inverted so that more recent clusters score closer to 1.
func fillRadarValues(clusters []models.ClusterMetadata) {
	var maxR, maxF, maxM float64
	for _, c := range clusters {
		maxR = math.Max(maxR, c.AvgRecency)
		maxF = math.Max(maxF, c.AvgFrequency)
		maxM = math.Max(maxM, c.AvgMonetary)
	}
	for i := range clusters {
		radar := map[string]float64{}
		if maxR > 0 {
			radar["recency"] = 1 - clusters[i].AvgRecency/maxR
		}
		if maxF > 0 {
			radar["frequency"] = clusters[i].AvgFrequency / maxF
		}
		if maxM > 0 {
			radar["monetary"] = clusters[i].AvgMonetary / maxM
		}
		clusters[i].RadarValues = radar
	}
}
