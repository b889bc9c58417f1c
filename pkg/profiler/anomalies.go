package profiler

import (
	"fmt"
	"sort"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

const (
	// nullSpikeThreshold flags columns whose null share exceeds 50%.
	nullSpikeThreshold = 0.5
	// dominanceThreshold flags columns whose top value exceeds 90% share.
	dominanceThreshold = 0.9
	// iqrMinValues is the minimum numeric sample for outlier fencing.
	iqrMinValues = 10
	// iqrFenceFactor is the classic 1.5x IQR fence.
	iqrFenceFactor = 1.5
)

// DetectAnomalies inspects a column profile plus its numeric sample for
// null spikes, IQR outlier clusters and single-value dominance.
func DetectAnomalies(profile *models.ColumnProfile, numbers []float64, sampleSize int) []models.Anomaly {
	var anomalies []models.Anomaly

	if profile.NullRate > nullSpikeThreshold {
		anomalies = append(anomalies, models.Anomaly{
			Kind:        models.AnomalyNullSpike,
			Description: fmt.Sprintf("%.0f%% of sampled values are null", profile.NullRate*100),
			Severity:    profile.NullRate,
		})
	}

	if len(numbers) >= iqrMinValues {
		sorted := append([]float64(nil), numbers...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		if iqr > 0 {
			lower := q1 - iqrFenceFactor*iqr
			upper := q3 + iqrFenceFactor*iqr
			outliers := 0
			for _, x := range sorted {
				if x < lower || x > upper {
					outliers++
				}
			}
			if outliers > 0 {
				share := float64(outliers) / float64(len(sorted))
				anomalies = append(anomalies, models.Anomaly{
					Kind:        models.AnomalyOutlierCluster,
					Description: fmt.Sprintf("%d values outside the 1.5×IQR fences [%.2f, %.2f]", outliers, lower, upper),
					Severity:    share,
				})
			}
		}
	}

	if sampleSize > 0 && len(profile.TopValues) > 0 {
		topShare := float64(profile.TopValues[0].Count) / float64(sampleSize)
		if topShare > dominanceThreshold {
			anomalies = append(anomalies, models.Anomaly{
				Kind:        models.AnomalyDominantValue,
				Description: fmt.Sprintf("value %q accounts for %.0f%% of sampled rows", profile.TopValues[0].Value, topShare*100),
				Severity:    topShare,
			})
		}
	}

	return anomalies
}
