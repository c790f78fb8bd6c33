package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeBlock(t *testing.T) {
	block, err := ParseTimeBlock("MORNING")
	require.NoError(t, err)
	assert.Equal(t, TimeBlockMorning, block)

	_, err = ParseTimeBlock("DAWN")
	assert.Error(t, err)

	_, err = ParseTimeBlock("morning")
	assert.Error(t, err, "parsing is case-sensitive")
}

func TestTimeBlockOrder(t *testing.T) {
	assert.Less(t, TimeBlockMorning.Order(), TimeBlockAfternoon.Order())
	assert.Less(t, TimeBlockAfternoon.Order(), TimeBlockEvening.Order())
	assert.Less(t, TimeBlockEvening.Order(), TimeBlockNight.Order())
}

func TestParseCategory(t *testing.T) {
	for _, category := range Categories {
		parsed, err := ParseCategory(string(category))
		require.NoError(t, err)
		assert.Equal(t, category, parsed)
	}

	_, err := ParseCategory("SLEEP")
	assert.Error(t, err)
}

func TestPriorityWeight(t *testing.T) {
	assert.Greater(t, PriorityHigh.Weight(), PriorityMedium.Weight())
	assert.Greater(t, PriorityMedium.Weight(), PriorityLow.Weight())
	assert.Zero(t, Priority("BOGUS").Weight())
}

func TestParsePriority(t *testing.T) {
	priority, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, priority)

	_, err = ParsePriority("URGENT")
	assert.Error(t, err)
}
