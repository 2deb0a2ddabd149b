package session

import (
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
)

// HistoryLimit is the number of calculations a session remembers.
const HistoryLimit = 50

// HistoryItem records one calculation. Exactly one of Result and Error
// is set.
type HistoryItem struct {
	ID          uint64          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	FormulaType formula.Type    `json:"formulaType"`
	Variant     formula.Variant `json:"variant"`
	Inputs      formula.Input   `json:"inputs"`
	Result      *formula.Result `json:"result,omitempty"`
	Error       *formula.Error  `json:"error,omitempty"`
}

// ring is a fixed-capacity FIFO. Once full, each push overwrites the
// oldest entry.
type ring struct {
	items [HistoryLimit]HistoryItem
	next  int
	size  int
}

func (r *ring) push(item HistoryItem) {
	r.items[r.next] = item
	r.next = (r.next + 1) % HistoryLimit
	if r.size < HistoryLimit {
		r.size++
	}
}

// newestFirst copies the entries out, most recent at index 0.
func (r *ring) newestFirst() []HistoryItem {
	out := make([]HistoryItem, 0, r.size)
	for i := 1; i <= r.size; i++ {
		out = append(out, r.items[(r.next-i+HistoryLimit)%HistoryLimit])
	}
	return out
}

func (r *ring) reset() {
	*r = ring{}
}
