package callstate

import "fmt"

// ChangeKind classifies what one applied notification did to the store.
type ChangeKind int

const (
	ChangeNone      ChangeKind = iota // ignored: unknown kind, missing keys, or no-op
	ChannelCreated                    // Newchannel
	ChannelRenamed                    // Rename
	ChannelUpdated                    // Newstate, NewCallerid, NewConnectedLine, VarSet
	ChannelRemoved                    // Hangup
	BridgeCreated                     // BridgeCreate
	MemberEntered                     // BridgeEnter
	MemberLeft                        // BridgeLeave
	BridgeDestroyed                   // BridgeDestroy
	SnapshotRow                       // CoreShowChannel
)

var changeNames = map[ChangeKind]string{
	ChangeNone:      "none",
	ChannelCreated:  "channel-created",
	ChannelRenamed:  "channel-renamed",
	ChannelUpdated:  "channel-updated",
	ChannelRemoved:  "channel-removed",
	BridgeCreated:   "bridge-created",
	MemberEntered:   "member-entered",
	MemberLeft:      "member-left",
	BridgeDestroyed: "bridge-destroyed",
	SnapshotRow:     "snapshot-row",
}

func (k ChangeKind) String() string {
	if s, ok := changeNames[k]; ok {
		return s
	}
	return "unknown"
}

// Change describes the effect of one Apply call.
type Change struct {
	Kind    ChangeKind
	Channel string
	OldName string // set for renames
	Bridge  string
	Detail  string // hangup cause, variable name, ...
}

// Describe renders the change as one audit line.
func (c Change) Describe() string {
	switch c.Kind {
	case ChannelCreated:
		return fmt.Sprintf("channel %s created", c.Channel)
	case ChannelRenamed:
		return fmt.Sprintf("channel %s renamed to %s", c.OldName, c.Channel)
	case ChannelUpdated:
		return fmt.Sprintf("channel %s updated", c.Channel)
	case ChannelRemoved:
		if c.Detail != "" {
			return fmt.Sprintf("channel %s hung up (%s)", c.Channel, c.Detail)
		}
		return fmt.Sprintf("channel %s hung up", c.Channel)
	case BridgeCreated:
		return fmt.Sprintf("bridge %s created", c.Bridge)
	case MemberEntered:
		return fmt.Sprintf("%s entered bridge %s", c.Channel, c.Bridge)
	case MemberLeft:
		return fmt.Sprintf("%s left bridge %s", c.Channel, c.Bridge)
	case BridgeDestroyed:
		return fmt.Sprintf("bridge %s destroyed", c.Bridge)
	case SnapshotRow:
		return fmt.Sprintf("channel %s synced", c.Channel)
	}
	return ""
}
