package curation_test

import (
	"testing"

	"github.com/raphaelgruber/annobridge/internal/curation"
	"github.com/raphaelgruber/annobridge/internal/models"
	"github.com/stretchr/testify/assert"
)

func span(begin, end int, value string) models.Span {
	return models.Span{Layer: models.SpanLayerName, Begin: begin, End: end, Value: value}
}

func TestMergeAgreement(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.75, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 4, "cat")},
	})

	assert.Equal(t, []models.Span{span(0, 4, "cat")}, merged)
}

func TestMergeDivergenceBelowThreshold(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.75, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 4, "dog")},
	})

	assert.Empty(t, merged, "a 50/50 split never clears a 0.75 confidence target")
}

func TestMergeMajorityWins(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.6, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 4, "cat")},
		{span(0, 4, "dog")},
	})

	assert.Equal(t, []models.Span{span(0, 4, "cat")}, merged)
}

func TestMergeTieAtTopRankRejected(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(1, 0.0, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 4, "dog")},
		{span(0, 4, "cat")},
		{span(0, 4, "dog")},
	})

	assert.Empty(t, merged)
}

func TestMergePositionsAreIndependent(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.75, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat"), span(10, 14, "dog")},
		{span(0, 4, "cat"), span(10, 14, "bird")},
	})

	assert.Equal(t, []models.Span{span(0, 4, "cat")}, merged,
		"agreement at one position survives divergence at another")
}

func TestMergeDistinctOffsetsAreDistinctPositions(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.75, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 5, "cat")},
	})

	assert.Empty(t, merged, "overlapping but unequal spans do not pool votes")
}

func TestMergeUserThreshold(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(3, 0.5, 1)

	merged := strategy.Merge([][]models.Span{
		{span(0, 4, "cat")},
		{span(0, 4, "cat")},
	})

	assert.Empty(t, merged, "two votes cannot satisfy a user threshold of three")
}

func TestMergeNoAnnotators(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(2, 0.75, 1)
	assert.Empty(t, strategy.Merge(nil))
}

func TestMergeOutputOrderedByOffset(t *testing.T) {
	strategy := curation.NewThresholdMergeStrategy(1, 0.0, 1)

	merged := strategy.Merge([][]models.Span{
		{span(20, 24, "late"), span(0, 4, "early"), span(5, 9, "middle")},
	})

	assert.Equal(t, []models.Span{
		span(0, 4, "early"),
		span(5, 9, "middle"),
		span(20, 24, "late"),
	}, merged)
}
