package console

import (
	"sort"
	"time"

	"github.com/callboard/callboard/internal/ami"
	"github.com/callboard/callboard/internal/audit"
	"github.com/callboard/callboard/internal/callstate"
	"github.com/callboard/callboard/internal/classify"
)

// Leg is one bridged channel with its advisory direction.
type Leg struct {
	callstate.Channel
	Direction classify.Direction `json:"direction"`
	Age       time.Duration      `json:"-"`
}

// Call is one non-empty bridge as the operator sees it.
type Call struct {
	ID        string             `json:"id"`
	Type      string             `json:"type,omitempty"`
	Direction classify.Direction `json:"direction"`
	Duration  time.Duration      `json:"-"`
	Seconds   int64              `json:"durationSeconds"`
	Members   []Leg              `json:"members"`
}

// Health summarizes the pipeline's load.
type Health struct {
	QueueDepth int    `json:"queueDepth"`
	QueueCap   int    `json:"queueCap"`
	Dropped    uint64 `json:"dropped"`
	Malformed  int64  `json:"malformed"`
	Pending    int    `json:"pending"`
	Bridges    int    `json:"bridges"` // tracked, empty ones included
	RSS        uint64 `json:"rss"`     // bytes; 0 when unavailable
}

// Board is the read-only view handed to renderers.
type Board struct {
	At        time.Time     `json:"at"`
	Calls     []Call        `json:"calls"` // longest first, ties by id
	Channels  int           `json:"channels"`
	Unbridged int           `json:"unbridged"`
	Audit     []audit.Entry `json:"-"`
	AuditSeen uint64        `json:"-"` // entries ever recorded
	Session   ami.Status    `json:"-"`
	Health    Health        `json:"health"`
}

// Call returns the call with the given bridge id.
func (b Board) Call(id string) (Call, bool) {
	for _, c := range b.Calls {
		if c.ID == id {
			return c, true
		}
	}
	return Call{}, false
}

func buildCalls(sn callstate.Snapshot, rules classify.Rules) []Call {
	calls := make([]Call, 0, len(sn.Bridges))
	for _, b := range sn.Bridges {
		chans := sn.Members(b)
		legs := make([]Leg, len(chans))
		for i, ch := range chans {
			legs[i] = Leg{Channel: ch, Direction: classify.Classify(ch, rules), Age: ch.Age(sn.At)}
		}
		d := b.Duration(sn.At)
		calls = append(calls, Call{
			ID:        b.ID,
			Type:      b.Type,
			Direction: classify.Bridge(chans, rules),
			Duration:  d,
			Seconds:   int64(d / time.Second),
			Members:   legs,
		})
	}
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].Duration != calls[j].Duration {
			return calls[i].Duration > calls[j].Duration
		}
		return calls[i].ID < calls[j].ID
	})
	return calls
}

func countUnbridged(sn callstate.Snapshot) int {
	n := 0
	for _, ch := range sn.Channels {
		if ch.BridgeID == "" {
			n++
		}
	}
	return n
}
