package callstate

import (
	"strconv"
	"strings"
	"time"

	"github.com/callboard/callboard/internal/ami"
)

// Apply folds one notification into the store. Applying the same message
// twice leaves the store as applying it once did. Responses and unknown
// event kinds are ignored.
func (s *Store) Apply(msg ami.Message) Change {
	if !msg.IsEvent() {
		return Change{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	switch strings.ToLower(msg.Event()) {
	case "newchannel":
		return s.createChannel(msg, now)
	case "rename":
		return s.renameChannel(msg, now)
	case "newstate", "newcallerid", "newconnectedline":
		return s.updateChannel(msg, now)
	case "varset":
		return s.setVariable(msg, now)
	case "hangup":
		return s.removeChannel(msg)
	case "bridgecreate":
		return s.createBridge(msg, now)
	case "bridgeenter":
		return s.enterBridge(msg, now)
	case "bridgeleave":
		return s.leaveBridge(msg, now)
	case "bridgedestroy":
		return s.destroyBridge(msg)
	case "coreshowchannel":
		return s.syncChannel(msg, now)
	}
	return Change{}
}

func (s *Store) createChannel(msg ami.Message, now time.Time) Change {
	name := msg.Get("Channel")
	if name == "" {
		return Change{}
	}
	ch, existed := s.channels[name]
	if !existed {
		ch = s.insertChannel(name, now)
	}
	s.merge(ch, msg, now)
	if existed {
		return Change{Kind: ChannelUpdated, Channel: name}
	}
	return Change{Kind: ChannelCreated, Channel: name}
}

func (s *Store) insertChannel(name string, now time.Time) *Channel {
	tech, peer := SplitName(name)
	ch := &Channel{Name: name, Tech: tech, Peer: peer, CreatedAt: now, UpdatedAt: now}
	s.channels[name] = ch
	return ch
}

func (s *Store) renameChannel(msg ami.Message, now time.Time) Change {
	oldName := msg.Get("Channel")
	newName := msg.Get("Newname")
	if newName == "" || oldName == newName {
		return Change{}
	}
	ch, ok := s.channels[oldName]
	if !ok {
		// Located through the unique id when the old name was never seen.
		name, known := s.byUniqueID[msg.Get("Uniqueid")]
		if !known || name == newName {
			return Change{}
		}
		oldName = name
		ch = s.channels[name]
	}
	if prev, clash := s.channels[newName]; clash {
		s.evict(prev, now)
	}

	delete(s.channels, oldName)
	ch.Name = newName
	ch.Tech, ch.Peer = SplitName(newName)
	ch.UpdatedAt = now
	s.channels[newName] = ch
	if ch.UniqueID != "" {
		s.byUniqueID[ch.UniqueID] = newName
	}

	for _, b := range s.bridges {
		if _, member := b.members[oldName]; member {
			delete(b.members, oldName)
			b.members[newName] = struct{}{}
			b.updatedAt = now
		}
	}
	return Change{Kind: ChannelRenamed, Channel: newName, OldName: oldName}
}

func (s *Store) updateChannel(msg ami.Message, now time.Time) Change {
	ch := s.lookup(msg)
	if ch == nil {
		return Change{}
	}
	s.merge(ch, msg, now)
	return Change{Kind: ChannelUpdated, Channel: ch.Name}
}

func (s *Store) setVariable(msg ami.Message, now time.Time) Change {
	ch := s.lookup(msg)
	if ch == nil {
		return Change{}
	}
	s.merge(ch, msg, now)
	variable := strings.TrimLeft(msg.Get("Variable"), "_")
	if strings.EqualFold(variable, s.hintVar) {
		if v := msg.Get("Value"); v != "" {
			ch.DirectionHint = v
		}
	}
	return Change{Kind: ChannelUpdated, Channel: ch.Name, Detail: variable}
}

func (s *Store) removeChannel(msg ami.Message) Change {
	ch := s.lookup(msg)
	name := msg.Get("Channel")
	if ch != nil {
		name = ch.Name
		delete(s.channels, name)
		if ch.UniqueID != "" {
			delete(s.byUniqueID, ch.UniqueID)
		}
	}
	if name == "" {
		return Change{}
	}
	removed := ch != nil
	for _, b := range s.bridges {
		if _, member := b.members[name]; member {
			delete(b.members, name)
			removed = true
		}
	}
	if !removed {
		return Change{}
	}
	return Change{Kind: ChannelRemoved, Channel: name, Detail: msg.Get("Cause-txt")}
}

func (s *Store) createBridge(msg ami.Message, now time.Time) Change {
	id := msg.Get("BridgeUniqueid")
	if id == "" {
		return Change{}
	}
	b, existed := s.bridges[id]
	if !existed {
		b = newBridge(id, now)
		s.bridges[id] = b
	}
	mergeBridge(b, msg, now)
	if existed {
		return Change{}
	}
	return Change{Kind: BridgeCreated, Bridge: id}
}

// enterBridge tolerates a missing BridgeCreate and a missing Newchannel: a
// console attached mid-call first hears of both through BridgeEnter.
func (s *Store) enterBridge(msg ami.Message, now time.Time) Change {
	id := bridgeID(msg)
	name := msg.Get("Channel")
	if id == "" || name == "" {
		return Change{}
	}
	b, ok := s.bridges[id]
	if !ok {
		b = newBridge(id, now)
		s.bridges[id] = b
	}
	mergeBridge(b, msg, now)

	ch, ok := s.channels[name]
	if !ok {
		ch = s.insertChannel(name, now)
	}
	s.merge(ch, msg, now)
	if ch.BridgeID != id {
		s.detach(ch, now)
	}
	ch.BridgeID = id

	if _, member := b.members[name]; member {
		return Change{}
	}
	b.members[name] = struct{}{}
	if b.firstJoinAt.IsZero() {
		b.firstJoinAt = now
	}
	return Change{Kind: MemberEntered, Channel: name, Bridge: id}
}

func (s *Store) leaveBridge(msg ami.Message, now time.Time) Change {
	id := bridgeID(msg)
	name := msg.Get("Channel")
	if id == "" || name == "" {
		return Change{}
	}
	left := false
	if b, ok := s.bridges[id]; ok {
		if _, member := b.members[name]; member {
			delete(b.members, name)
			b.updatedAt = now
			left = true
		}
	}
	if ch, ok := s.channels[name]; ok && ch.BridgeID == id {
		ch.BridgeID = ""
		ch.UpdatedAt = now
		left = true
	}
	if !left {
		return Change{}
	}
	return Change{Kind: MemberLeft, Channel: name, Bridge: id}
}

func (s *Store) destroyBridge(msg ami.Message) Change {
	id := bridgeID(msg)
	b, ok := s.bridges[id]
	if !ok {
		return Change{}
	}
	for name := range b.members {
		if ch, ok := s.channels[name]; ok && ch.BridgeID == id {
			ch.BridgeID = ""
		}
	}
	delete(s.bridges, id)
	return Change{Kind: BridgeDestroyed, Bridge: id}
}

// syncChannel applies one CoreShowChannel row from a CoreShowChannels
// listing. The row's Duration back-dates creation, and a BridgeId rebuilds
// membership for calls already in progress.
func (s *Store) syncChannel(msg ami.Message, now time.Time) Change {
	name := msg.Get("Channel")
	if name == "" {
		return Change{}
	}
	ch, ok := s.channels[name]
	if !ok {
		ch = s.insertChannel(name, now)
		if d, ok := parseDuration(msg.Get("Duration")); ok {
			ch.CreatedAt = now.Add(-d)
		}
	}
	s.merge(ch, msg, now)

	id := msg.Get("BridgeId")
	if ch.BridgeID != id {
		s.detach(ch, now)
	}
	if id != "" {
		b, ok := s.bridges[id]
		if !ok {
			b = newBridge(id, ch.CreatedAt)
			s.bridges[id] = b
		}
		b.members[name] = struct{}{}
		if b.firstJoinAt.IsZero() || ch.CreatedAt.Before(b.firstJoinAt) {
			b.firstJoinAt = ch.CreatedAt
		}
		b.updatedAt = now
		ch.BridgeID = id
	}
	return Change{Kind: SnapshotRow, Channel: name, Bridge: ch.BridgeID}
}

// detach removes ch from the bridge it currently belongs to.
func (s *Store) detach(ch *Channel, now time.Time) {
	if ch.BridgeID == "" {
		return
	}
	if b, ok := s.bridges[ch.BridgeID]; ok {
		delete(b.members, ch.Name)
		b.updatedAt = now
	}
	ch.BridgeID = ""
	ch.UpdatedAt = now
}

// evict drops a channel whose name is being taken over by a rename.
func (s *Store) evict(ch *Channel, now time.Time) {
	s.detach(ch, now)
	for _, b := range s.bridges {
		delete(b.members, ch.Name)
	}
	if ch.UniqueID != "" && s.byUniqueID[ch.UniqueID] == ch.Name {
		delete(s.byUniqueID, ch.UniqueID)
	}
	delete(s.channels, ch.Name)
}

// lookup finds the channel a message refers to by name, falling back to
// its unique id.
func (s *Store) lookup(msg ami.Message) *Channel {
	if ch, ok := s.channels[msg.Get("Channel")]; ok {
		return ch
	}
	if name, ok := s.byUniqueID[msg.Get("Uniqueid")]; ok {
		return s.channels[name]
	}
	return nil
}

// merge copies every non-empty field of msg onto ch. Notifications are often
// partial, so a known value is never replaced by an empty one.
func (s *Store) merge(ch *Channel, msg ami.Message, now time.Time) {
	set := func(dst *string, key string) {
		if v := cleanValue(msg.Get(key)); v != "" {
			*dst = v
		}
	}
	if id := msg.Get("Uniqueid"); id != "" && id != ch.UniqueID {
		if ch.UniqueID != "" {
			delete(s.byUniqueID, ch.UniqueID)
		}
		ch.UniqueID = id
		s.byUniqueID[id] = ch.Name
	}
	set(&ch.LinkedID, "Linkedid")
	set(&ch.CallerNum, "CallerIDNum")
	set(&ch.CallerName, "CallerIDName")
	set(&ch.ConnectedNum, "ConnectedLineNum")
	set(&ch.ConnectedName, "ConnectedLineName")
	set(&ch.Context, "Context")
	set(&ch.Exten, "Exten")
	set(&ch.Priority, "Priority")
	set(&ch.State, "ChannelStateDesc")
	set(&ch.AccountCode, "AccountCode")
	ch.UpdatedAt = now
}

func mergeBridge(b *bridge, msg ami.Message, now time.Time) {
	if v := msg.Get("BridgeType"); v != "" {
		b.kind = v
	}
	if v := msg.Get("BridgeTechnology"); v != "" {
		b.technology = v
	}
	if v := msg.Get("BridgeName"); v != "" {
		b.name = v
	}
	b.updatedAt = now
}

func bridgeID(msg ami.Message) string {
	if id := msg.Get("BridgeUniqueid"); id != "" {
		return id
	}
	return msg.Get("BridgeId")
}

// cleanValue maps the switch's "<unknown>" placeholder to empty.
func cleanValue(v string) string {
	if v == "<unknown>" {
		return ""
	}
	return v
}

// parseDuration accepts "HH:MM:SS" or plain seconds.
func parseDuration(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if !strings.Contains(v, ":") {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	var total int
	for _, part := range strings.Split(v, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
