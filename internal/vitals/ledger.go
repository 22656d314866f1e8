package vitals

import (
	"fmt"
	"sync"
)

// Sample is one user-entered set of health vitals. Samples are immutable
// once appended; SequenceLabel is assigned by ledger position, not by
// wall-clock time. ID is assigned by the storage service and is empty
// while a local entry awaits confirmation.
type Sample struct {
	ID              string   `json:"id,omitempty"`
	OwnerID         string   `json:"userId"`
	HeartRate       int      `json:"heartRate"`
	SystolicBP      int      `json:"bloodPressure"`
	BloodOxygen     *float64 `json:"bloodOxygen,omitempty"`
	Glucose         *float64 `json:"glucose,omitempty"`
	BodyTemperature *float64 `json:"bodyTemperature,omitempty"`
	SequenceLabel   string   `json:"name"`

	// key identifies a locally appended entry independent of its label,
	// which ReplaceAll may reassign while the remote write is in flight.
	key uint64
}

// Ledger is an ordered append-only series of samples. Optimistic local
// entries are merged immediately and reconciled against the authoritative
// list by server-assigned id once it is known.
type Ledger struct {
	mu      sync.Mutex
	samples []Sample
	nextKey uint64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func label(n int) string {
	return fmt.Sprintf("M%d", n)
}

// Append stores a new sample with the next sequence label, independent of
// any label the storage service may assign. The stored copy is returned;
// it is the handle for Confirm and Drop.
func (l *Ledger) Append(s Sample) Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextKey++
	s.key = l.nextKey
	s.SequenceLabel = label(len(l.samples) + 1)
	l.samples = append(l.samples, s)
	return s
}

// Confirm attaches the server-assigned id to the optimistic entry
// returned by Append, marking it no longer pending. The entry is matched
// by identity, not by its current label. If a refresh already brought in
// the authoritative copy under the same id, the optimistic entry is
// removed instead so the sample never appears twice.
func (l *Ledger) Confirm(optimistic Sample, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.samples {
		if s.key != optimistic.key && s.ID == id && id != "" {
			l.remove(optimistic.key)
			return
		}
	}
	for i := range l.samples {
		if l.samples[i].key == optimistic.key {
			l.samples[i].ID = id
			return
		}
	}
}

// Drop removes the optimistic entry returned by Append and relabels the
// remainder so labels stay M1..Mn. Used to roll back an optimistic append
// whose remote write definitively failed.
func (l *Ledger) Drop(optimistic Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remove(optimistic.key)
}

// remove expects l.mu to be held. Key zero belongs to entries adopted
// from the authoritative list, which are never removed individually.
func (l *Ledger) remove(key uint64) {
	if key == 0 {
		return
	}
	kept := l.samples[:0]
	for _, s := range l.samples {
		if s.key != key {
			kept = append(kept, s)
		}
	}
	l.samples = kept
	for i := range l.samples {
		l.samples[i].SequenceLabel = label(i + 1)
	}
}

// ReplaceAll swaps in the authoritative list from the storage service,
// relabelled M1..Mn in order. Local entries still awaiting confirmation
// are kept after it unless the authoritative list already contains their
// server id; confirmed local entries are superseded by the remote copy.
func (l *Ledger) ReplaceAll(authoritative []Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool, len(authoritative))
	next := make([]Sample, 0, len(authoritative))
	for _, s := range authoritative {
		next = append(next, s)
		if s.ID != "" {
			seen[s.ID] = true
		}
	}

	for _, s := range l.samples {
		if s.ID == "" {
			// Still pending: the remote write has not confirmed yet.
			next = append(next, s)
		} else if !seen[s.ID] {
			next = append(next, s)
		}
	}

	for i := range next {
		next[i].SequenceLabel = label(i + 1)
	}
	l.samples = next
}

// Latest returns the most recent sample. ok is false when the ledger is
// empty; absence of data is a normal state, not a failure.
func (l *Ledger) Latest() (Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) == 0 {
		return Sample{}, false
	}
	return l.samples[len(l.samples)-1], true
}

// Series returns a copy of the full ordered series.
func (l *Ledger) Series() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

// Reset clears the ledger. Called on logout.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = nil
}
