package occupancy

// Counters are the running occupancy totals. CurrentInside is always
// CountIn - CountOut; build values with NewCounters.
type Counters struct {
	CountIn       int64 `json:"count_in"`
	CountOut      int64 `json:"count_out"`
	CurrentInside int64 `json:"current_inside"`
}

// NewCounters derives CurrentInside from the two totals.
func NewCounters(in, out int64) Counters {
	return Counters{CountIn: in, CountOut: out, CurrentInside: in - out}
}

// Overcrowded reports whether c is at or over threshold.
func Overcrowded(c Counters, threshold int) bool {
	return c.CurrentInside >= int64(threshold)
}

// Aggregator accumulates crossings into Counters.
type Aggregator struct {
	in, out int64
}

// Apply counts one crossing and returns the updated totals.
func (a *Aggregator) Apply(kind CrossingKind) Counters {
	switch kind {
	case Entry:
		a.in++
	case Exit:
		a.out++
	}
	return a.Counters()
}

// Counters returns the current totals.
func (a *Aggregator) Counters() Counters {
	return NewCounters(a.in, a.out)
}
