package wallboard

import (
	"time"

	"github.com/callboard/callboard/internal/console"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// SnapshotPayload is the wallboard's view of a console Board: calls and
// load, without the audit trail.
type SnapshotPayload struct {
	At        time.Time      `json:"at"`
	Session   string         `json:"session"`
	Calls     []console.Call `json:"calls"`
	Channels  int            `json:"channels"`
	Unbridged int            `json:"unbridged"`
	Health    console.Health `json:"health"`
}

func newSnapshot(b console.Board) SnapshotPayload {
	calls := b.Calls
	if calls == nil {
		calls = []console.Call{}
	}
	return SnapshotPayload{
		At:        b.At,
		Session:   b.Session.State.String(),
		Calls:     calls,
		Channels:  b.Channels,
		Unbridged: b.Unbridged,
		Health:    b.Health,
	}
}
