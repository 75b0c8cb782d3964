// Package callstate holds the live model of channels and bridges, rebuilt
// entirely from manager notifications.
package callstate

import (
	"sort"
	"strings"
	"time"
)

// Channel is one call leg as the switch reports it.
type Channel struct {
	Name          string    `json:"name"`
	UniqueID      string    `json:"uniqueId"`
	LinkedID      string    `json:"linkedId,omitempty"`
	CallerNum     string    `json:"callerNum,omitempty"`
	CallerName    string    `json:"callerName,omitempty"`
	ConnectedNum  string    `json:"connectedNum,omitempty"`
	ConnectedName string    `json:"connectedName,omitempty"`
	Context       string    `json:"context,omitempty"`
	Exten         string    `json:"exten,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	State         string    `json:"state,omitempty"`
	AccountCode   string    `json:"accountCode,omitempty"`
	Tech          string    `json:"tech,omitempty"`
	Peer          string    `json:"peer,omitempty"`
	DirectionHint string    `json:"directionHint,omitempty"` // from the configured channel variable
	BridgeID      string    `json:"bridgeId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Age returns how long the channel has existed at now.
func (c Channel) Age(now time.Time) time.Duration {
	if c.CreatedAt.IsZero() || now.Before(c.CreatedAt) {
		return 0
	}
	return now.Sub(c.CreatedAt)
}

// Bridge is a set of channels mixed together: one call as the operator
// sees it. Members is sorted.
type Bridge struct {
	ID          string    `json:"id"`
	Type        string    `json:"type,omitempty"`
	Technology  string    `json:"technology,omitempty"`
	Name        string    `json:"name,omitempty"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	FirstJoinAt time.Time `json:"firstJoinAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Duration is measured from the first member joining, not from creation.
// It is zero until someone joins.
func (b Bridge) Duration(now time.Time) time.Duration {
	if b.FirstJoinAt.IsZero() || now.Before(b.FirstJoinAt) {
		return 0
	}
	return now.Sub(b.FirstJoinAt)
}

// Empty reports whether the bridge has no members. Empty bridges are kept
// until destroyed but are never shown or targeted.
func (b Bridge) Empty() bool { return len(b.Members) == 0 }

// Has reports whether name is a member.
func (b Bridge) Has(name string) bool {
	i := sort.SearchStrings(b.Members, name)
	return i < len(b.Members) && b.Members[i] == name
}

// bridge is the store's mutable form with a member set.
type bridge struct {
	id          string
	kind        string
	technology  string
	name        string
	members     map[string]struct{}
	createdAt   time.Time
	firstJoinAt time.Time
	updatedAt   time.Time
}

func newBridge(id string, now time.Time) *bridge {
	return &bridge{
		id:        id,
		members:   make(map[string]struct{}),
		createdAt: now,
		updatedAt: now,
	}
}

func (b *bridge) view() Bridge {
	members := make([]string, 0, len(b.members))
	for name := range b.members {
		members = append(members, name)
	}
	sort.Strings(members)
	return Bridge{
		ID:          b.id,
		Type:        b.kind,
		Technology:  b.technology,
		Name:        b.name,
		Members:     members,
		CreatedAt:   b.createdAt,
		FirstJoinAt: b.firstJoinAt,
		UpdatedAt:   b.updatedAt,
	}
}

// SplitName parses "PJSIP/mytrunk-0000002a" into tech "PJSIP" and peer
// "mytrunk". The ";1"/";2" half marker of Local channels is dropped, so
// "Local/1001@from-internal-00000012;1" yields peer "1001@from-internal".
func SplitName(name string) (tech, peer string) {
	tech, rest, ok := strings.Cut(name, "/")
	if !ok {
		return "", ""
	}
	if i := strings.LastIndexByte(rest, ';'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndexByte(rest, '-'); i > 0 {
		rest = rest[:i]
	}
	return tech, rest
}
