package occupancy

// AlertCapacity is the number of alerts the dashboard keeps.
const AlertCapacity = 5

// AlertLog is a bounded FIFO of alerts; appending past capacity evicts the
// oldest entry. It does no locking of its own.
type AlertLog struct {
	capacity int
	entries  []Alert
}

// NewAlertLog returns a log holding at most capacity alerts.
func NewAlertLog(capacity int) *AlertLog {
	if capacity < 1 {
		capacity = AlertCapacity
	}
	return &AlertLog{capacity: capacity, entries: make([]Alert, 0, capacity)}
}

// Append adds a to the tail, dropping index 0 when full.
func (l *AlertLog) Append(a Alert) {
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, a)
}

// Entries returns a copy of the alerts, oldest first.
func (l *AlertLog) Entries() []Alert {
	out := make([]Alert, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored alerts.
func (l *AlertLog) Len() int {
	return len(l.entries)
}
