package callstate

import (
	"sort"
	"sync"
	"time"
)

// DefaultHintVariable is the channel variable read as an explicit
// direction hint.
const DefaultHintVariable = "CALL_DIRECTION"

// Store is the authoritative channel/bridge model. Only Apply mutates it;
// every read returns copies.
type Store struct {
	mu         sync.RWMutex
	channels   map[string]*Channel // keyed by current name
	byUniqueID map[string]string   // unique id -> current name
	bridges    map[string]*bridge
	hintVar    string
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHintVariable sets the channel variable carrying a direction hint.
func WithHintVariable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.hintVar = name
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		channels:   make(map[string]*Channel),
		byUniqueID: make(map[string]string),
		bridges:    make(map[string]*bridge),
		hintVar:    DefaultHintVariable,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) Channel(name string) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// channelByUniqueID looks a channel up by its unique identifier.
func (s *Store) channelByUniqueID(id string) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.byUniqueID[id]
	if !ok {
		return Channel{}, false
	}
	ch, ok := s.channels[name]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

func (s *Store) Bridge(id string) (Bridge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bridges[id]
	if !ok {
		return Bridge{}, false
	}
	return b.view(), true
}

// Channels returns every channel sorted by name.
func (s *Store) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelsLocked()
}

// Bridges returns every bridge, empty ones included, sorted by id.
func (s *Store) Bridges() []Bridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bridgesLocked(false)
}

// ActiveBridges returns only bridges with at least one member.
func (s *Store) ActiveBridges() []Bridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bridgesLocked(true)
}

// Len returns the channel and bridge counts.
func (s *Store) Len() (channels, bridges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels), len(s.bridges)
}

// Snapshot is a consistent copy of the store taken under one lock.
type Snapshot struct {
	At       time.Time
	Channels map[string]Channel
	Bridges  []Bridge // non-empty only, sorted by id
}

// Members returns the channels of b that are known to the store, in member
// order. Unknown names are skipped.
func (sn Snapshot) Members(b Bridge) []Channel {
	out := make([]Channel, 0, len(b.Members))
	for _, name := range b.Members {
		if ch, ok := sn.Channels[name]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Snapshot copies the state for rendering.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make(map[string]Channel, len(s.channels))
	for name, ch := range s.channels {
		channels[name] = *ch
	}
	return Snapshot{
		At:       s.now(),
		Channels: channels,
		Bridges:  s.bridgesLocked(true),
	}
}

func (s *Store) channelsLocked() []Channel {
	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) bridgesLocked(activeOnly bool) []Bridge {
	out := make([]Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		if activeOnly && len(b.members) == 0 {
			continue
		}
		out = append(out, b.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
