package console

import (
	"fmt"

	"github.com/callboard/callboard/internal/control"
)

type IntentKind int

const (
	Hangup    IntentKind = iota // Channel
	Kick                        // Bridge, Channel
	Destroy                     // Bridge
	Monitor                     // Channel, Mode
	HangupAll                   // every known channel
	Refresh                     // re-list channels from the switch
)

// Intent is an operator request, named by state identifiers only.
type Intent struct {
	Kind    IntentKind
	Bridge  string
	Channel string
	Mode    control.Mode
}

func (in Intent) String() string {
	switch in.Kind {
	case Hangup:
		return fmt.Sprintf("hangup %s", in.Channel)
	case Kick:
		return fmt.Sprintf("kick %s from %s", in.Channel, in.Bridge)
	case Destroy:
		return fmt.Sprintf("destroy %s", in.Bridge)
	case Monitor:
		return fmt.Sprintf("%s %s", in.Mode, in.Channel)
	case HangupAll:
		return "hangup all"
	case Refresh:
		return "refresh"
	}
	return fmt.Sprintf("intent(%d)", in.Kind)
}
