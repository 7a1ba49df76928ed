package heatmap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/heatmap"
	"github.com/Ramsey-B/aster/pkg/models"
)

func activity(provider models.Provider, ts string) models.UnifiedActivity {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return models.UnifiedActivity{Provider: provider, Timestamp: parsed}
}

func TestAggregateBucketsByUTCDay(t *testing.T) {
	activities := []models.UnifiedActivity{
		activity(models.ProviderGitHub, "2026-08-10T09:00:00Z"),
		activity(models.ProviderGitHub, "2026-08-10T17:30:00Z"),
		activity(models.ProviderAzureDevOps, "2026-08-10T23:59:59Z"),
		// 23:30 in UTC-2 is the next UTC day
		activity(models.ProviderGitHub, "2026-08-10T23:30:00-02:00"),
	}

	buckets := heatmap.Aggregate(activities)
	require.Len(t, buckets, 2)

	assert.Equal(t, "2026-08-10", buckets[0].Date)
	assert.Equal(t, 3, buckets[0].Count)
	assert.Equal(t, 2, buckets[0].ByProvider[models.ProviderGitHub])
	assert.Equal(t, 1, buckets[0].ByProvider[models.ProviderAzureDevOps])

	assert.Equal(t, "2026-08-11", buckets[1].Date)
	assert.Equal(t, 1, buckets[1].Count)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, heatmap.Aggregate(nil))
}

func TestMergeSumsOverlappingDays(t *testing.T) {
	a := []models.HeatMapBucket{
		{Date: "2026-08-10", Count: 2, ByProvider: map[models.Provider]int{models.ProviderGitHub: 2}},
		{Date: "2026-08-12", Count: 1, ByProvider: map[models.Provider]int{models.ProviderGitHub: 1}},
	}
	b := []models.HeatMapBucket{
		{Date: "2026-08-10", Count: 3, ByProvider: map[models.Provider]int{models.ProviderCalendar: 3}},
	}

	merged := heatmap.Merge(a, b)
	require.Len(t, merged, 2)

	assert.Equal(t, "2026-08-10", merged[0].Date)
	assert.Equal(t, 5, merged[0].Count)
	assert.Equal(t, 2, merged[0].ByProvider[models.ProviderGitHub])
	assert.Equal(t, 3, merged[0].ByProvider[models.ProviderCalendar])
	assert.Equal(t, "2026-08-12", merged[1].Date)
}

func TestMergeIsCommutative(t *testing.T) {
	a := []models.HeatMapBucket{{Date: "2026-08-10", Count: 2}}
	b := []models.HeatMapBucket{{Date: "2026-08-10", Count: 3}, {Date: "2026-08-11", Count: 1}}

	assert.Equal(t, heatmap.Merge(a, b), heatmap.Merge(b, a))
}

func TestMergeIsAssociative(t *testing.T) {
	a := []models.HeatMapBucket{{Date: "2026-08-10", Count: 2}}
	b := []models.HeatMapBucket{{Date: "2026-08-10", Count: 3}}
	c := []models.HeatMapBucket{{Date: "2026-08-11", Count: 1}}

	left := heatmap.Merge(heatmap.Merge(a, b), c)
	right := heatmap.Merge(a, heatmap.Merge(b, c))
	assert.Equal(t, left, right)
}

func TestBucketCountMatchesProviderBreakdown(t *testing.T) {
	activities := []models.UnifiedActivity{
		activity(models.ProviderGitHub, "2026-08-10T09:00:00Z"),
		activity(models.ProviderAzureDevOps, "2026-08-10T10:00:00Z"),
		activity(models.ProviderCalendar, "2026-08-10T11:00:00Z"),
	}

	for _, bucket := range heatmap.Aggregate(activities) {
		sum := 0
		for _, n := range bucket.ByProvider {
			sum += n
		}
		assert.Equal(t, bucket.Count, sum)
	}
}
