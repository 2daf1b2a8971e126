package server

import (
	"sync"
	"time"

	"github.com/danmuck/emvtap/internal/emv"
)

// CycleSummary is the JSON view of one cycle outcome.
type CycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	State      string    `json:"state"`
	Reached    string    `json:"reached"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	AID        string    `json:"aid,omitempty"`
	Label      string    `json:"label,omitempty"`
	Files      int       `json:"files"`
	Records    int       `json:"records"`
	RecordsOK  int       `json:"records_ok"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
}

func Summarize(o emv.Outcome) CycleSummary {
	sum := CycleSummary{
		CycleID:    o.CycleID.String(),
		State:      o.State.String(),
		Reached:    o.Reached.String(),
		AID:        o.Candidate.AIDHex(),
		Label:      o.Candidate.Label,
		Files:      len(o.Files),
		Records:    len(o.Records),
		RecordsOK:  o.RecordsOK(),
		Started:    o.Started,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		sum.Stage = o.Err.Stage.String()
		sum.Error = o.Err.Err.Error()
	}
	return sum
}

// CycleStore keeps the most recent outcome for the HTTP surface.
type CycleStore struct {
	mu    sync.RWMutex
	last  *CycleSummary
	total uint64
}

func NewCycleStore() *CycleStore {
	return &CycleStore{}
}

// Record is usable as an emv.Loop outcome handler.
func (s *CycleStore) Record(o emv.Outcome) {
	sum := Summarize(o)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &sum
	s.total++
}

func (s *CycleStore) Last() (CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleSummary{}, false
	}
	return *s.last, true
}

func (s *CycleStore) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
