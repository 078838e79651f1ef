package guidance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

func TestTier(t *testing.T) {
	assert.Equal(t, 0, Tier(0, 0))
	assert.Equal(t, 0, Tier(1, 0))
	assert.Equal(t, 1, Tier(2, 0))
	assert.Equal(t, 2, Tier(3, 0))
	assert.Equal(t, 3, Tier(4, 0))
	assert.Equal(t, 3, Tier(40, 0))
}

func TestTierMonotonic(t *testing.T) {
	prev := 0
	for attempt := 1; attempt <= 10; attempt++ {
		next := Tier(attempt, prev)
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
	assert.Equal(t, 2, Tier(1, 2), "a lower attempt count never lowers the tier")
}

func opt(id int64, hints ...string) clinical.Option {
	o := clinical.Option{ID: id, Kind: clinical.KindDiagnosis, IsCorrect: true}
	copy(o.Hints[:], hints)
	return o
}

func TestSelectSingleCorrect(t *testing.T) {
	correct := []clinical.Option{opt(1, "look at the pressure", "measure IOP", "gonioscopy")}
	assert.Equal(t, Hint{}, Select(correct, nil, 0))
	assert.Equal(t, "look at the pressure", Select(correct, []int64{9}, 1).Text)
	assert.Equal(t, "measure IOP", Select(correct, []int64{9}, 2).Text)
	assert.Equal(t, "gonioscopy", Select(correct, []int64{9}, 3).Text)
}

func TestSelectFirstMissing(t *testing.T) {
	correct := []clinical.Option{opt(1, "first"), opt(2, "second"), opt(3, "third")}
	h := Select(correct, []int64{1, 7}, 1)
	assert.Equal(t, "second", h.Text)
	assert.Equal(t, int64(2), h.OptionID)

	// nothing missing: only extras were wrong
	h = Select(correct, []int64{1, 2, 3, 7}, 1)
	assert.Equal(t, "first", h.Text)
}

func TestSelectFallsBackToLowerTier(t *testing.T) {
	correct := []clinical.Option{opt(1, "only tier one")}
	h := Select(correct, nil, 3)
	assert.Equal(t, 3, h.Tier)
	assert.Equal(t, "only tier one", h.Text)
	assert.False(t, h.Generic)
}

func TestSelectGenericWhenUnauthored(t *testing.T) {
	correct := []clinical.Option{opt(1)}
	h := Select(correct, nil, 2)
	assert.True(t, h.Generic)
	assert.NotEmpty(t, h.Text)

	h = Select(nil, nil, 1)
	assert.True(t, h.Generic)
}
