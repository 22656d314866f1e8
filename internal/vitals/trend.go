package vitals

import "sync"

// TrendPoint is one derived emotion-trend entry, appended once per
// completed risk classification. NumericLevel is the fixed monotone
// mapping of the risk level (Safe 8, Warning 4, Danger 2).
type TrendPoint struct {
	SequenceLabel string `json:"name"`
	NumericLevel  int    `json:"level"`
}

// Trend is the ordered emotion-level series shown alongside the vitals
// ledger. Labels follow the same M1..Mn discipline.
type Trend struct {
	mu     sync.Mutex
	points []TrendPoint
}

func NewTrend() *Trend {
	return &Trend{}
}

func (t *Trend) Append(numericLevel int) TrendPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := TrendPoint{
		SequenceLabel: label(len(t.points) + 1),
		NumericLevel:  numericLevel,
	}
	t.points = append(t.points, p)
	return p
}

func (t *Trend) Points() []TrendPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrendPoint, len(t.points))
	copy(out, t.points)
	return out
}

func (t *Trend) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = nil
}
