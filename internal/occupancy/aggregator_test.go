package occupancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregator_Apply(t *testing.T) {
	t.Parallel()
	var a Aggregator
	assert.Equal(t, Counters{CountIn: 1, CountOut: 0, CurrentInside: 1}, a.Apply(Entry))
	assert.Equal(t, Counters{CountIn: 2, CountOut: 0, CurrentInside: 2}, a.Apply(Entry))
	assert.Equal(t, Counters{CountIn: 2, CountOut: 1, CurrentInside: 1}, a.Apply(Exit))
}

func TestAggregator_InsideMayGoNegative(t *testing.T) {
	t.Parallel()
	var a Aggregator
	c := a.Apply(Exit)
	assert.Equal(t, int64(-1), c.CurrentInside)
	assert.Equal(t, c.CountIn-c.CountOut, c.CurrentInside)
}

func TestOvercrowded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		inside    int64
		threshold int
		want      bool
	}{
		{0, 1, false},
		{1, 1, true},
		{4, 3, true},
		{2, 3, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Overcrowded(NewCounters(tt.inside, 0), tt.threshold), "inside=%d threshold=%d", tt.inside, tt.threshold)
	}
}
