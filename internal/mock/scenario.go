package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/callboard/callboard/internal/ami"
)

type party struct {
	num  string
	name string
}

// Call describes a two-leg call to set up. Endpoints are channel name
// prefixes such as "PJSIP/1001"; the switch appends the unique suffix.
type Call struct {
	From, To          string // endpoints
	FromNum, FromName string
	ToNum, ToName     string
	Context           string
	Hint              string // optional CALL_DIRECTION value
}

// AddCall creates both legs, bridges them and emits the notifications a
// switch sends for an answered call. It returns the bridge id and the two
// channel names.
func (s *Switch) AddCall(c Call) (bridgeID string, legs [2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := party{num: c.FromNum, name: c.FromName}
	to := party{num: c.ToNum, name: c.ToName}
	a := s.newChannelLocked(c.From, from, to, c.Context, c.ToNum)
	s.emitChannelLocked("Newchannel", a)
	if c.Hint != "" {
		s.broadcast(append([]ami.Field{{Key: "Event", Value: "VarSet"}}, append(channelFields(a),
			ami.Field{Key: "Variable", Value: "__CALL_DIRECTION"},
			ami.Field{Key: "Value", Value: c.Hint},
		)...)...)
	}
	b := s.newChannelLocked(c.To, to, from, "from-internal", c.ToNum)
	b.linkedID = a.linkedID
	b.state = "Ringing"
	s.emitChannelLocked("Newchannel", b)
	b.state = "Up"
	s.emitChannelLocked("Newstate", b)
	a.state = "Up"
	s.emitChannelLocked("Newstate", a)

	br := &bridge{id: newBridgeID(), members: make(map[string]struct{})}
	s.bridges[br.id] = br
	s.broadcast(append([]ami.Field{{Key: "Event", Value: "BridgeCreate"}}, bridgeFields(br)...)...)
	for _, ch := range []*channel{a, b} {
		br.members[ch.name] = struct{}{}
		ch.bridge = br.id
		fields := append([]ami.Field{{Key: "Event", Value: "BridgeEnter"}}, bridgeFields(br)...)
		s.broadcast(append(fields, channelFields(ch)...)...)
	}
	return br.id, [2]string{a.name, b.name}
}

// Hangup ends a channel from the switch side, as if the caller hung up.
func (s *Switch) Hangup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangupLocked(name, "Normal Clearing")
}

// Rename gives a channel a new name, as a Local channel optimization does.
func (s *Switch) Rename(oldName, newName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[oldName]
	if !ok {
		return false
	}
	if _, taken := s.channels[newName]; taken {
		return false
	}
	delete(s.channels, oldName)
	ch.name = newName
	s.channels[newName] = ch
	if b, ok := s.bridges[ch.bridge]; ok {
		delete(b.members, oldName)
		b.members[newName] = struct{}{}
	}
	s.broadcast(
		ami.Field{Key: "Event", Value: "Rename"},
		ami.Field{Key: "Channel", Value: oldName},
		ami.Field{Key: "Newname", Value: newName},
		ami.Field{Key: "Uniqueid", Value: ch.uniqueID},
	)
	return true
}

// ScenarioOptions drives RunScenario.
type ScenarioOptions struct {
	Interval time.Duration // between steps; default 1.5s
	MaxCalls int           // default 6
	Seed     int64         // 0 picks a time-based seed
}

// RunScenario keeps a rotating set of calls going until ctx ends. New
// inbound, outbound and internal calls arrive while others hang up.
func (s *Switch) RunScenario(ctx context.Context, opts ScenarioOptions) {
	if opts.Interval <= 0 {
		opts.Interval = 1500 * time.Millisecond
	}
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = 6
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	for i := 0; i < opts.MaxCalls/2; i++ {
		s.AddCall(randomCall(rng))
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step(rng, opts.MaxCalls)
		}
	}
}

func (s *Switch) step(rng *rand.Rand, maxCalls int) {
	s.mu.Lock()
	calls := len(s.bridges)
	var names []string
	for name, ch := range s.channels {
		if ch.bridge != "" {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)

	r := rng.Float64()
	switch {
	case calls < maxCalls && (r < 0.45 || calls == 0):
		s.AddCall(randomCall(rng))
	case r < 0.7 && len(names) > 0:
		s.Hangup(names[rng.Intn(len(names))])
	case len(names) > 0:
		s.touch(names[rng.Intn(len(names))])
	}
}

// touch re-announces a channel's state, the way long calls produce periodic
// noise.
func (s *Switch) touch(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[name]; ok {
		s.emitChannelLocked("Newstate", ch)
	}
}

var firstNames = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi"}

func randomCall(rng *rand.Rand) Call {
	ext := func() string { return fmt.Sprintf("10%02d", rng.Intn(20)+1) }
	external := func() string { return fmt.Sprintf("555%07d", rng.Intn(10000000)) }
	name := firstNames[rng.Intn(len(firstNames))]

	switch rng.Intn(3) {
	case 0:
		to := ext()
		return Call{
			From: "PJSIP/carrier", FromNum: external(),
			To: "PJSIP/" + to, ToNum: to, ToName: name,
			Context: "from-trunk",
		}
	case 1:
		from := ext()
		c := Call{
			From: "PJSIP/" + from, FromNum: from, FromName: name,
			To: "PJSIP/mytrunk", ToNum: external(),
			Context: "from-internal",
		}
		if rng.Intn(2) == 0 {
			c.Hint = "outbound"
		}
		return c
	default:
		from, to := ext(), ext()
		return Call{
			From: "PJSIP/" + from, FromNum: from, FromName: name,
			To: "PJSIP/" + to, ToNum: to, ToName: firstNames[rng.Intn(len(firstNames))],
			Context: "from-internal",
		}
	}
}
