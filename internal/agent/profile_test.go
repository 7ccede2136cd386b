// ABOUTME: Tests for agent identifiers and profile lookup
// ABOUTME: Checks parsing, specialist ordering and domain mapping

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, name := range []string{"router", "digital-mentor", "finance-guide", "health-coach"} {
		id, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, ID(name), id)
	}

	_, err := Parse("Router")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
}

func TestSpecialistsOrder(t *testing.T) {
	specs := Specialists()
	require.Len(t, specs, 3)
	assert.Equal(t, DigitalMentor, specs[0].ID)
	assert.Equal(t, FinanceGuide, specs[1].ID)
	assert.Equal(t, HealthCoach, specs[2].ID)
	for _, p := range specs {
		assert.True(t, p.IsSpecialist())
		assert.NotEmpty(t, p.Keywords)
	}
	assert.False(t, MustLookup(Router).IsSpecialist())
}

func TestForDomain(t *testing.T) {
	p, ok := ForDomain("finance")
	require.True(t, ok)
	assert.Equal(t, FinanceGuide, p.ID)

	_, ok = ForDomain("astrology")
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"router", "digital-mentor", "finance-guide", "health-coach"}, Names())
}
