// Package classify guesses call direction from channel metadata. The result
// is advisory: it drives labels and colors only.
package classify

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/callboard/callboard/internal/callstate"
)

type Direction int

const (
	Unknown Direction = iota
	Inbound
	Outbound
	Internal
)

var directionNames = [...]string{"unknown", "inbound", "outbound", "internal"}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return "unknown"
	}
	return directionNames[d]
}

// ParseDirection maps a direction name, case-insensitively. Anything else
// yields Unknown and false.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbound":
		return Inbound, true
	case "outbound":
		return Outbound, true
	case "internal":
		return Internal, true
	}
	return Unknown, false
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	if strings.EqualFold(string(b), "unknown") {
		*d = Unknown
		return nil
	}
	v, ok := ParseDirection(string(b))
	if !ok {
		return fmt.Errorf("unknown direction %q", b)
	}
	*d = v
	return nil
}

// Rule assigns Direction to a channel when every criterion it sets matches.
// A rule with no criteria never matches.
type Rule struct {
	Name             string    `yaml:"name"`
	Direction        Direction `yaml:"direction"`
	Contexts         []string  `yaml:"contexts,omitempty"`
	ChannelPrefixes  []string  `yaml:"channel_prefixes,omitempty"`
	Peers            []string  `yaml:"peers,omitempty"` // glob patterns
	CallerPattern    string    `yaml:"caller_pattern,omitempty"`
	ConnectedPattern string    `yaml:"connected_pattern,omitempty"`

	caller    *regexp.Regexp
	connected *regexp.Regexp
}

// Rules is an ordered rule set; the first match wins.
type Rules []Rule

// Compile validates every rule and prepares its patterns. It must be called
// before Classify; DefaultRules returns an already compiled set.
func Compile(rules []Rule) (Rules, error) {
	out := make(Rules, len(rules))
	for i, r := range rules {
		if r.Direction == Unknown {
			return nil, fmt.Errorf("rule %d (%s): direction is required", i, r.Name)
		}
		for _, p := range r.Peers {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("rule %d (%s): peer pattern %q: %w", i, r.Name, p, err)
			}
		}
		var err error
		if r.CallerPattern != "" {
			if r.caller, err = regexp.Compile(r.CallerPattern); err != nil {
				return nil, fmt.Errorf("rule %d (%s): caller pattern: %w", i, r.Name, err)
			}
		}
		if r.ConnectedPattern != "" {
			if r.connected, err = regexp.Compile(r.ConnectedPattern); err != nil {
				return nil, fmt.Errorf("rule %d (%s): connected pattern: %w", i, r.Name, err)
			}
		}
		out[i] = r
	}
	return out, nil
}

// DefaultRules is the built-in rule set: trunk-facing contexts are inbound,
// trunk channel prefixes are outbound, and extension-to-extension calls are
// internal.
func DefaultRules() Rules {
	rules, err := Compile([]Rule{
		{
			Name:      "inbound-context",
			Direction: Inbound,
			Contexts:  []string{"from-external", "from-trunk", "inbound"},
		},
		{
			Name:            "outbound-trunk",
			Direction:       Outbound,
			ChannelPrefixes: []string{"PJSIP/outbound", "PJSIP/mytrunk", "PJSIP/siptrunk"},
		},
		{
			Name:             "extension-to-extension",
			Direction:        Internal,
			CallerPattern:    `^\d{2,5}$`,
			ConnectedPattern: `^\d{2,5}$`,
		},
	})
	if err != nil {
		panic(err)
	}
	return rules
}

func (r Rule) empty() bool {
	return len(r.Contexts) == 0 && len(r.ChannelPrefixes) == 0 && len(r.Peers) == 0 &&
		r.CallerPattern == "" && r.ConnectedPattern == ""
}

func (r Rule) matches(ch callstate.Channel) bool {
	if r.empty() {
		return false
	}
	if len(r.Contexts) > 0 && !anyFold(r.Contexts, ch.Context) {
		return false
	}
	if len(r.ChannelPrefixes) > 0 && !anyPrefix(r.ChannelPrefixes, ch.Name) {
		return false
	}
	if len(r.Peers) > 0 && !anyGlob(r.Peers, ch.Peer) {
		return false
	}
	if r.CallerPattern != "" && (r.caller == nil || !r.caller.MatchString(ch.CallerNum)) {
		return false
	}
	if r.ConnectedPattern != "" && (r.connected == nil || !r.connected.MatchString(ch.ConnectedNum)) {
		return false
	}
	return true
}

// Classify returns the channel's direction. An explicit hint wins; otherwise
// the first matching rule decides.
func Classify(ch callstate.Channel, rules Rules) Direction {
	if d, ok := ParseDirection(ch.DirectionHint); ok {
		return d
	}
	for _, r := range rules {
		if r.matches(ch) {
			return r.Direction
		}
	}
	return Unknown
}

// Bridge returns the plurality direction of the members, ignoring unknown
// ones. A tie or no votes at all yields Unknown.
func Bridge(members []callstate.Channel, rules Rules) Direction {
	var votes [len(directionNames)]int
	for _, ch := range members {
		votes[Classify(ch, rules)]++
	}
	best, bestVotes, tied := Unknown, 0, false
	for d := Inbound; d <= Internal; d++ {
		switch {
		case votes[d] > bestVotes:
			best, bestVotes, tied = d, votes[d], false
		case votes[d] == bestVotes && bestVotes > 0:
			tied = true
		}
	}
	if tied {
		return Unknown
	}
	return best
}

func anyFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func anyPrefix(list []string, v string) bool {
	for _, s := range list {
		if strings.HasPrefix(v, s) {
			return true
		}
	}
	return false
}

func anyGlob(list []string, v string) bool {
	for _, p := range list {
		if ok, _ := path.Match(p, v); ok {
			return true
		}
	}
	return false
}
