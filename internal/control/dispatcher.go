// Package control turns operator intents into manager actions. It never
// touches the call state; the outcome of an action shows up only through
// the notifications that follow it.
package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/callboard/callboard/internal/ami"
)

var (
	ErrNoSupervisor = errors.New("no supervisor endpoint configured")
	ErrModeDisabled = errors.New("supervision mode has no dial prefix configured")
	ErrEmptyTarget  = errors.New("no target given")
)

// Doer sends one action and waits for its correlated response.
// *ami.Client implements it.
type Doer interface {
	Do(ctx context.Context, action ami.Action) (ami.Message, error)
}

// Mode selects how a supervisor joins a call.
type Mode int

const (
	Listen  Mode = iota // hear both sides, speak to nobody
	Whisper             // speak to the agent only
	Barge               // speak to both sides
)

func (m Mode) String() string {
	switch m {
	case Listen:
		return "listen"
	case Whisper:
		return "whisper"
	case Barge:
		return "barge"
	}
	return "unknown"
}

// Supervisor describes the endpoint rung for supervised side-calls.
type Supervisor struct {
	Endpoint      string // e.g. PJSIP/9000; empty disables supervision
	Context       string
	DialPrefix    string // listen
	WhisperPrefix string
	BargePrefix   string
	CallerID      string
	Timeout       time.Duration
}

func (s Supervisor) prefix(m Mode) string {
	switch m {
	case Whisper:
		return s.WhisperPrefix
	case Barge:
		return s.BargePrefix
	}
	return s.DialPrefix
}

// Dispatcher maps intents to actions. Each call blocks until the switch
// answers or ctx ends; a nil error means the switch accepted the action.
type Dispatcher struct {
	doer       Doer
	supervisor Supervisor
	timeout    time.Duration
}

// NewDispatcher builds a dispatcher. A non-positive timeout leaves the
// deadline to the caller's context.
func NewDispatcher(doer Doer, supervisor Supervisor, timeout time.Duration) *Dispatcher {
	return &Dispatcher{doer: doer, supervisor: supervisor, timeout: timeout}
}

// Supervisor returns the configured supervisor.
func (d *Dispatcher) Supervisor() Supervisor { return d.supervisor }

func (d *Dispatcher) do(ctx context.Context, action ami.Action) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if _, err := d.doer.Do(ctx, action); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(action.Name), err)
	}
	return nil
}

func (d *Dispatcher) Hangup(ctx context.Context, channel string) error {
	if channel == "" {
		return ErrEmptyTarget
	}
	return d.do(ctx, ami.NewAction("Hangup", "Channel", channel))
}

// Kick removes one channel from a bridge. The channel is hung up by the
// switch unless something else picks it up.
func (d *Dispatcher) Kick(ctx context.Context, bridgeID, channel string) error {
	if bridgeID == "" || channel == "" {
		return ErrEmptyTarget
	}
	return d.do(ctx, ami.NewAction("BridgeKick", "BridgeUniqueid", bridgeID, "Channel", channel))
}

func (d *Dispatcher) DestroyBridge(ctx context.Context, bridgeID string) error {
	if bridgeID == "" {
		return ErrEmptyTarget
	}
	return d.do(ctx, ami.NewAction("BridgeDestroy", "BridgeUniqueid", bridgeID))
}

// OriginateSupervisorMonitor rings the supervisor endpoint into a listen-only
// spy on target.
func (d *Dispatcher) OriginateSupervisorMonitor(ctx context.Context, target string) error {
	return d.OriginateSupervisor(ctx, target, Listen)
}

// OriginateSupervisor rings the supervisor endpoint and, once answered,
// dials prefix+target in the supervisor context. Nothing is sent when no
// endpoint is configured or the mode has no prefix.
func (d *Dispatcher) OriginateSupervisor(ctx context.Context, target string, mode Mode) error {
	s := d.supervisor
	if s.Endpoint == "" {
		return ErrNoSupervisor
	}
	if target == "" {
		return ErrEmptyTarget
	}
	prefix := s.prefix(mode)
	if prefix == "" && mode != Listen {
		return fmt.Errorf("%s: %w", mode, ErrModeDisabled)
	}
	a := ami.NewAction("Originate",
		"Channel", s.Endpoint,
		"Context", s.Context,
		"Exten", prefix+target,
		"Priority", "1",
		"Async", "true",
	)
	if s.Timeout > 0 {
		a.Fields = append(a.Fields, ami.Field{Key: "Timeout", Value: strconv.FormatInt(s.Timeout.Milliseconds(), 10)})
	}
	if s.CallerID != "" {
		a.Fields = append(a.Fields, ami.Field{Key: "CallerID", Value: s.CallerID})
	}
	return d.do(ctx, a)
}

// HangupAll sends one Hangup per channel, in order, and joins the failures.
// It stops early only when ctx ends.
func (d *Dispatcher) HangupAll(ctx context.Context, channels []string) error {
	var errs []error
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.Hangup(ctx, ch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh asks the switch to list every active channel. The rows arrive as
// notifications after the response.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	return d.do(ctx, ami.NewAction("CoreShowChannels"))
}
