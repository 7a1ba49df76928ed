// Package heatmap buckets activities by calendar date. Aggregation is pure
// and deterministic, so buckets are always re-derivable from the activity set
// and never act as a source of truth.
package heatmap

import (
	"sort"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Aggregate groups a flat activity list by UTC calendar date, producing one
// bucket per date with a total count and a per-provider breakdown. Buckets
// are sorted ascending by date.
func Aggregate(activities []models.UnifiedActivity) []models.HeatMapBucket {
	byDate := make(map[string]*models.HeatMapBucket)

	for _, activity := range activities {
		day := activity.Day()
		bucket, ok := byDate[day]
		if !ok {
			bucket = &models.HeatMapBucket{
				Date:       day,
				ByProvider: make(map[models.Provider]int),
			}
			byDate[day] = bucket
		}
		bucket.Count++
		bucket.ByProvider[activity.Provider]++
	}

	return sorted(byDate)
}

// Merge folds multiple bucket collections into one, summing counts and
// breakdown entries key-wise. The operation is commutative and associative
// over collection order; the result is sorted ascending by date.
func Merge(sets ...[]models.HeatMapBucket) []models.HeatMapBucket {
	byDate := make(map[string]*models.HeatMapBucket)

	for _, set := range sets {
		for _, bucket := range set {
			merged, ok := byDate[bucket.Date]
			if !ok {
				merged = &models.HeatMapBucket{
					Date:       bucket.Date,
					ByProvider: make(map[models.Provider]int),
				}
				byDate[bucket.Date] = merged
			}
			merged.Count += bucket.Count
			for provider, count := range bucket.ByProvider {
				merged.ByProvider[provider] += count
			}
		}
	}

	return sorted(byDate)
}

func sorted(byDate map[string]*models.HeatMapBucket) []models.HeatMapBucket {
	buckets := make([]models.HeatMapBucket, 0, len(byDate))
	for _, bucket := range byDate {
		if len(bucket.ByProvider) == 0 {
			bucket.ByProvider = nil
		}
		buckets = append(buckets, *bucket)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date < buckets[j].Date
	})

	return buckets
}
