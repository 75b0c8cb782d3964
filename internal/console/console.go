// Package console is the boundary between the call-control core and
// whatever renders it. Renderers read a Board and submit Intents; they never
// see the store, the client or the wire.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/callboard/callboard/internal/ami"
	"github.com/callboard/callboard/internal/audit"
	"github.com/callboard/callboard/internal/callstate"
	"github.com/callboard/callboard/internal/classify"
	"github.com/callboard/callboard/internal/control"
)

// PumpWait bounds how long one pump call blocks on an empty queue, so the
// display keeps ticking.
const PumpWait = 100 * time.Millisecond

// ErrNoSuchCall is returned for intents naming an absent or empty bridge.
var ErrNoSuchCall = errors.New("no such call")

// Link is the live connection as the console observes it. *ami.Client
// implements it.
type Link interface {
	Status() ami.Status
	Pending() int
	Malformed() int64
}

// Deps wires a Console. Store, Dispatcher, Audit and Queue are required.
type Deps struct {
	Store      *callstate.Store
	Dispatcher *control.Dispatcher
	Audit      *audit.Log
	Queue      *ami.Queue
	Link       Link
	Rules      classify.Rules
	Logger     *slog.Logger
}

type Console struct {
	store      *callstate.Store
	dispatcher *control.Dispatcher
	audit      *audit.Log
	queue      *ami.Queue
	link       Link
	rules      classify.Rules
	logger     *slog.Logger

	rssMu   sync.Mutex
	rss     uint64
	rssAt   time.Time
	rssProc *process.Process
}

func New(d Deps) *Console {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rules := d.Rules
	if rules == nil {
		rules = classify.DefaultRules()
	}
	c := &Console{
		store:      d.Store,
		dispatcher: d.Dispatcher,
		audit:      d.Audit,
		queue:      d.Queue,
		link:       d.Link,
		rules:      rules,
		logger:     logger,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.rssProc = p
	}
	return c
}

// Audit returns the audit log.
func (c *Console) Audit() *audit.Log { return c.audit }

// Pump blocks up to PumpWait for queued notifications and drains them.
// An empty result means nothing arrived in time.
func (c *Console) Pump(ctx context.Context) []ami.Message {
	if !c.queue.Wait(ctx, PumpWait) {
		return nil
	}
	return c.queue.Drain(0)
}

// Apply folds a batch into the store in order and records what changed.
func (c *Console) Apply(batch []ami.Message) int {
	changed := 0
	for _, msg := range batch {
		if !msg.IsEvent() {
			c.logger.Debug("uncorrelated response", "response", msg.Response(), "action_id", msg.ActionID())
			continue
		}
		switch strings.ToLower(msg.Event()) {
		case "originateresponse":
			c.recordOriginate(msg)
			continue
		case "coreshowchannelscomplete":
			c.audit.Addf(audit.Event, "sync complete: %s channels listed", orDash(msg.Get("ListItems")))
			continue
		}

		ch := c.store.Apply(msg)
		if ch.Kind == callstate.ChangeNone {
			continue
		}
		changed++
		c.logger.Debug("applied", "event", msg.Event(), "change", ch.Kind.String(), "channel", ch.Channel, "bridge", ch.Bridge)
		switch ch.Kind {
		case callstate.ChannelUpdated, callstate.SnapshotRow:
			// too frequent for the trail
		default:
			c.audit.Add(audit.Event, ch.Describe())
		}
	}
	return changed
}

func (c *Console) recordOriginate(msg ami.Message) {
	target := orDash(msg.Get("Channel"))
	if strings.EqualFold(msg.Response(), "success") {
		c.audit.Addf(audit.Action, "supervisor call to %s answered", target)
		return
	}
	c.audit.Addf(audit.Error, "supervisor call to %s failed: %s", target, orDash(msg.Get("Reason")))
}

// Snapshot assembles the current Board.
func (c *Console) Snapshot() Board {
	sn := c.store.Snapshot()
	b := Board{
		At:        sn.At,
		Calls:     buildCalls(sn, c.rules),
		Channels:  len(sn.Channels),
		Unbridged: countUnbridged(sn),
		Audit:     c.audit.Entries(),
		AuditSeen: c.audit.Total(),
		Health:    c.Health(),
	}
	if c.link != nil {
		b.Session = c.link.Status()
	}
	return b
}

// Health reports queue load and process memory. RSS is sampled at most
// once a second.
func (c *Console) Health() Health {
	h := Health{
		QueueDepth: c.queue.Len(),
		QueueCap:   c.queue.Cap(),
		Dropped:    c.queue.Dropped(),
		RSS:        c.sampleRSS(),
	}
	_, h.Bridges = c.store.Len()
	if c.link != nil {
		h.Pending = c.link.Pending()
		h.Malformed = c.link.Malformed()
	}
	return h
}

func (c *Console) sampleRSS() uint64 {
	if c.rssProc == nil {
		return 0
	}
	c.rssMu.Lock()
	defer c.rssMu.Unlock()
	if time.Since(c.rssAt) < time.Second {
		return c.rss
	}
	c.rssAt = time.Now()
	if mem, err := c.rssProc.MemoryInfo(); err == nil {
		c.rss = mem.RSS
	}
	return c.rss
}

// Submit validates an intent against the current state and dispatches it.
// The outcome is recorded in the audit trail and returned. Intents naming an
// absent or empty bridge fail with ErrNoSuchCall before anything is sent.
func (c *Console) Submit(ctx context.Context, in Intent) error {
	err := c.dispatch(ctx, in)
	if err != nil {
		c.audit.Addf(audit.Error, "%s: %v", in, err)
		c.logger.Warn("intent failed", "intent", in.String(), "error", err)
		return err
	}
	c.audit.Addf(audit.Action, "%s accepted", in)
	c.logger.Info("intent accepted", "intent", in.String())
	return nil
}

func (c *Console) dispatch(ctx context.Context, in Intent) error {
	switch in.Kind {
	case Hangup:
		return c.dispatcher.Hangup(ctx, in.Channel)
	case Kick:
		if err := c.requireCall(in.Bridge); err != nil {
			return err
		}
		return c.dispatcher.Kick(ctx, in.Bridge, in.Channel)
	case Destroy:
		if err := c.requireCall(in.Bridge); err != nil {
			return err
		}
		return c.dispatcher.DestroyBridge(ctx, in.Bridge)
	case Monitor:
		return c.dispatcher.OriginateSupervisor(ctx, in.Channel, in.Mode)
	case HangupAll:
		channels := c.store.Channels()
		names := make([]string, len(channels))
		for i, ch := range channels {
			names[i] = ch.Name
		}
		return c.dispatcher.HangupAll(ctx, names)
	case Refresh:
		return c.dispatcher.Refresh(ctx)
	}
	return fmt.Errorf("unknown intent %d", in.Kind)
}

func (c *Console) requireCall(id string) error {
	b, ok := c.store.Bridge(id)
	if !ok || b.Empty() {
		return fmt.Errorf("bridge %q: %w", id, ErrNoSuchCall)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
