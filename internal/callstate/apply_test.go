package callstate

import (
	"reflect"
	"testing"
	"time"

	"github.com/callboard/callboard/internal/ami"
)

func members(t *testing.T, s *Store, id string) []string {
	t.Helper()
	b, ok := s.Bridge(id)
	if !ok {
		t.Fatalf("bridge %s missing", id)
	}
	return b.Members
}

func TestApplyIgnoresResponsesAndUnknownKinds(t *testing.T) {
	s := NewStore()
	tests := []struct {
		name string
		msg  ami.Message
	}{
		{"response", ami.NewMessage("Response", "Success", "Channel", "A")},
		{"unknown kind", ev("PeerStatus", "Peer", "PJSIP/1001")},
		{"update for unknown channel", ev("Newstate", "Channel", "ghost", "ChannelStateDesc", "Up")},
		{"create without name", ev("Newchannel")},
		{"destroy unknown bridge", ev("BridgeDestroy", "BridgeUniqueid", "B9")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Apply(tt.msg); got.Kind != ChangeNone {
				t.Errorf("Apply() kind = %v, want none", got.Kind)
			}
		})
	}
	if ch, br := s.Len(); ch != 0 || br != 0 {
		t.Errorf("store mutated: Len() = (%d, %d)", ch, br)
	}
}

func TestMergeKeepsKnownFields(t *testing.T) {
	s := NewStore()
	s.Apply(ev("Newchannel",
		"Channel", "PJSIP/1001-1", "Uniqueid", "u1", "CallerIDNum", "1001",
		"CallerIDName", "Alice", "Context", "from-internal", "Exten", "2002",
		"ChannelStateDesc", "Ring"))
	s.Apply(ev("Newstate", "Channel", "PJSIP/1001-1", "ChannelStateDesc", "Up",
		"CallerIDNum", "", "CallerIDName", "<unknown>"))

	ch, _ := s.Channel("PJSIP/1001-1")
	if ch.State != "Up" {
		t.Errorf("State = %q, want Up", ch.State)
	}
	if ch.CallerNum != "1001" || ch.CallerName != "Alice" {
		t.Errorf("caller overwritten by empty values: %q %q", ch.CallerNum, ch.CallerName)
	}
	if ch.Tech != "PJSIP" || ch.Peer != "1001" {
		t.Errorf("tech/peer = %q/%q", ch.Tech, ch.Peer)
	}
}

func TestUpdateByUniqueID(t *testing.T) {
	s := NewStore()
	s.Apply(ev("Newchannel", "Channel", "PJSIP/1001-1", "Uniqueid", "u1"))
	got := s.Apply(ev("NewConnectedLine", "Uniqueid", "u1", "ConnectedLineNum", "2002"))
	if got.Kind != ChannelUpdated || got.Channel != "PJSIP/1001-1" {
		t.Fatalf("Apply() = %+v", got)
	}
	ch, _ := s.channelByUniqueID("u1")
	if ch.ConnectedNum != "2002" {
		t.Errorf("ConnectedNum = %q, want 2002", ch.ConnectedNum)
	}
}

func TestDirectionHintFromVariable(t *testing.T) {
	tests := []struct {
		name     string
		hintVar  string
		variable string
		value    string
		want     string
	}{
		{"default variable", "", "CALL_DIRECTION", "inbound", "inbound"},
		{"inherited prefix", "", "__CALL_DIRECTION", "outbound", "outbound"},
		{"case insensitive", "", "call_direction", "internal", "internal"},
		{"other variable", "", "DIALSTATUS", "ANSWER", ""},
		{"custom variable", "DIR", "DIR", "inbound", "inbound"},
		{"empty value keeps nothing", "", "CALL_DIRECTION", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(WithHintVariable(tt.hintVar))
			s.Apply(ev("Newchannel", "Channel", "A"))
			s.Apply(ev("VarSet", "Channel", "A", "Variable", tt.variable, "Value", tt.value))
			ch, _ := s.Channel("A")
			if ch.DirectionHint != tt.want {
				t.Errorf("DirectionHint = %q, want %q", ch.DirectionHint, tt.want)
			}
		})
	}
}

func TestBridgeEnterPermutationsFormSet(t *testing.T) {
	enter := func(ch string) ami.Message {
		return ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", ch)
	}
	sequences := [][]ami.Message{
		{enter("A"), enter("B"), enter("C")},
		{enter("C"), enter("B"), enter("A")},
		{enter("B"), enter("A"), enter("B"), enter("C"), enter("A")},
		{ev("BridgeCreate", "BridgeUniqueid", "B1"), enter("A"), enter("C"), enter("B"), enter("C")},
	}
	want := []string{"A", "B", "C"}
	for i, seq := range sequences {
		s := NewStore()
		for _, msg := range seq {
			s.Apply(msg)
		}
		if got := members(t, s, "B1"); !reflect.DeepEqual(got, want) {
			t.Errorf("sequence %d: members = %v, want %v", i, got, want)
		}
	}
}

func TestBridgeEnterSelfHeals(t *testing.T) {
	s := NewStore()
	got := s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "BridgeType", "basic",
		"Channel", "PJSIP/trunk-9", "Uniqueid", "u9", "CallerIDNum", "5551234"))
	if got.Kind != MemberEntered {
		t.Fatalf("Apply() kind = %v, want member-entered", got.Kind)
	}
	b, ok := s.Bridge("B1")
	if !ok || b.Type != "basic" {
		t.Fatalf("bridge not created: %+v", b)
	}
	ch, ok := s.Channel("PJSIP/trunk-9")
	if !ok || ch.BridgeID != "B1" || ch.CallerNum != "5551234" {
		t.Errorf("channel not created from enter: %+v", ch)
	}
}

func TestBridgeEnterMovesChannel(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "A"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B2", "Channel", "A"))

	if got := members(t, s, "B1"); len(got) != 0 {
		t.Errorf("B1 members = %v, want empty after move", got)
	}
	if got := members(t, s, "B2"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("B2 members = %v", got)
	}
	ch, _ := s.Channel("A")
	if ch.BridgeID != "B2" {
		t.Errorf("BridgeID = %q, want B2", ch.BridgeID)
	}
}

func TestBridgeLeaveIdempotent(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "A"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "B"))

	leave := ev("BridgeLeave", "BridgeUniqueid", "B1", "Channel", "A")
	if got := s.Apply(leave); got.Kind != MemberLeft {
		t.Errorf("first leave kind = %v", got.Kind)
	}
	after := members(t, s, "B1")
	if got := s.Apply(leave); got.Kind != ChangeNone {
		t.Errorf("second leave kind = %v, want none", got.Kind)
	}
	if got := members(t, s, "B1"); !reflect.DeepEqual(got, after) {
		t.Errorf("duplicate leave changed members: %v -> %v", after, got)
	}
	ch, _ := s.Channel("A")
	if ch.BridgeID != "" {
		t.Errorf("BridgeID = %q after leave", ch.BridgeID)
	}
}

func TestBridgeLeaveOfOtherBridgeKeepsReference(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B2", "Channel", "A"))
	s.Apply(ev("BridgeLeave", "BridgeUniqueid", "B1", "Channel", "A"))
	ch, _ := s.Channel("A")
	if ch.BridgeID != "B2" {
		t.Errorf("BridgeID = %q, want B2", ch.BridgeID)
	}
}

func TestRenamePreservesIdentity(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.Apply(ev("Newchannel", "Channel", "Local/1001@x-1;1", "Uniqueid", "u1",
		"CallerIDNum", "1001", "Context", "from-internal"))
	s.Apply(ev("VarSet", "Channel", "Local/1001@x-1;1", "Variable", "CALL_DIRECTION", "Value", "internal"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "Local/1001@x-1;1"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "PJSIP/2002-1"))
	before, _ := s.Channel("Local/1001@x-1;1")

	clock.Advance(time.Second)
	got := s.Apply(ev("Rename", "Channel", "Local/1001@x-1;1", "Newname", "PJSIP/1001-7", "Uniqueid", "u1"))
	if got.Kind != ChannelRenamed || got.OldName != "Local/1001@x-1;1" || got.Channel != "PJSIP/1001-7" {
		t.Fatalf("Apply() = %+v", got)
	}

	if _, ok := s.Channel("Local/1001@x-1;1"); ok {
		t.Error("old name still present")
	}
	after, ok := s.Channel("PJSIP/1001-7")
	if !ok {
		t.Fatal("new name missing")
	}
	if after.UniqueID != before.UniqueID || after.CallerNum != before.CallerNum ||
		after.Context != before.Context || after.DirectionHint != before.DirectionHint ||
		after.BridgeID != before.BridgeID || !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("rename changed identity:\nbefore %+v\nafter  %+v", before, after)
	}
	if after.Tech != "PJSIP" || after.Peer != "1001" {
		t.Errorf("tech/peer not reparsed: %q/%q", after.Tech, after.Peer)
	}
	if got := members(t, s, "B1"); !reflect.DeepEqual(got, []string{"PJSIP/1001-7", "PJSIP/2002-1"}) {
		t.Errorf("members = %v", got)
	}
	if ch, _ := s.channelByUniqueID("u1"); ch.Name != "PJSIP/1001-7" {
		t.Errorf("unique id index points at %q", ch.Name)
	}

	// Replaying the rename is a no-op.
	if got := s.Apply(ev("Rename", "Channel", "Local/1001@x-1;1", "Newname", "PJSIP/1001-7", "Uniqueid", "u1")); got.Kind != ChangeNone {
		t.Errorf("replayed rename kind = %v, want none", got.Kind)
	}
}

func TestHangupRemovesChannelAndMembership(t *testing.T) {
	s := NewStore()
	s.Apply(ev("Newchannel", "Channel", "A", "Uniqueid", "uA"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "A"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "B"))

	got := s.Apply(ev("Hangup", "Channel", "A", "Uniqueid", "uA", "Cause-txt", "Normal Clearing"))
	if got.Kind != ChannelRemoved || got.Detail != "Normal Clearing" {
		t.Errorf("Apply() = %+v", got)
	}
	if _, ok := s.Channel("A"); ok {
		t.Error("channel still present after hangup")
	}
	if _, ok := s.channelByUniqueID("uA"); ok {
		t.Error("unique id still indexed after hangup")
	}
	if got := members(t, s, "B1"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("members = %v, want [B]", got)
	}
	if got := s.Apply(ev("Hangup", "Channel", "A")); got.Kind != ChangeNone {
		t.Errorf("duplicate hangup kind = %v", got.Kind)
	}
}

func TestBridgeDestroyClearsReferences(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "A"))
	got := s.Apply(ev("BridgeDestroy", "BridgeUniqueid", "B1"))
	if got.Kind != BridgeDestroyed {
		t.Fatalf("Apply() kind = %v", got.Kind)
	}
	if _, ok := s.Bridge("B1"); ok {
		t.Error("bridge still present")
	}
	ch, _ := s.Channel("A")
	if ch.BridgeID != "" {
		t.Errorf("BridgeID = %q after destroy", ch.BridgeID)
	}
}

// The two-leg call: ChanA and ChanB bridged in B1, then torn down in the
// order the switch reports a normal hangup.
func TestTwoLegCallLifecycle(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))

	steps := []struct {
		msg      ami.Message
		wantKind ChangeKind
	}{
		{ev("Newchannel", "Channel", "ChanA", "Uniqueid", "a", "CallerIDNum", "1001"), ChannelCreated},
		{ev("Newchannel", "Channel", "ChanB", "Uniqueid", "b", "CallerIDNum", "1002"), ChannelCreated},
		{ev("BridgeCreate", "BridgeUniqueid", "B1", "BridgeType", "basic"), BridgeCreated},
		{ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "ChanA"), MemberEntered},
		{ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "ChanB"), MemberEntered},
	}
	for i, step := range steps {
		clock.Advance(time.Second)
		if got := s.Apply(step.msg); got.Kind != step.wantKind {
			t.Fatalf("step %d: kind = %v, want %v", i, got.Kind, step.wantKind)
		}
	}

	active := s.ActiveBridges()
	if len(active) != 1 || !reflect.DeepEqual(active[0].Members, []string{"ChanA", "ChanB"}) {
		t.Fatalf("active bridges = %+v", active)
	}
	clock.Advance(30 * time.Second)
	if d := active[0].Duration(clock.Now()); d != 31*time.Second {
		t.Errorf("Duration = %v, want 31s", d)
	}

	s.Apply(ev("BridgeLeave", "BridgeUniqueid", "B1", "Channel", "ChanA"))
	s.Apply(ev("Hangup", "Channel", "ChanA", "Uniqueid", "a"))
	if got := members(t, s, "B1"); !reflect.DeepEqual(got, []string{"ChanB"}) {
		t.Errorf("members after A left = %v", got)
	}
	s.Apply(ev("BridgeLeave", "BridgeUniqueid", "B1", "Channel", "ChanB"))
	if len(s.ActiveBridges()) != 0 {
		t.Error("empty bridge still reported active")
	}
	if _, ok := s.Bridge("B1"); !ok {
		t.Error("empty bridge dropped before destroy")
	}
	s.Apply(ev("Hangup", "Channel", "ChanB", "Uniqueid", "b"))
	s.Apply(ev("BridgeDestroy", "BridgeUniqueid", "B1"))

	if ch, br := s.Len(); ch != 0 || br != 0 {
		t.Errorf("Len() = (%d, %d) after teardown, want (0, 0)", ch, br)
	}
}

func TestSnapshotRowRebuildsCall(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))

	rows := []ami.Message{
		ev("CoreShowChannel", "ActionID", "x", "Channel", "PJSIP/1001-1", "Uniqueid", "u1",
			"CallerIDNum", "1001", "ConnectedLineNum", "2002", "ChannelStateDesc", "Up",
			"BridgeId", "B7", "Duration", "00:01:30"),
		ev("CoreShowChannel", "ActionID", "x", "Channel", "PJSIP/2002-1", "Uniqueid", "u2",
			"BridgeId", "B7", "Duration", "75"),
	}
	for _, row := range rows {
		if got := s.Apply(row); got.Kind != SnapshotRow {
			t.Fatalf("Apply() kind = %v, want snapshot-row", got.Kind)
		}
	}

	b, ok := s.Bridge("B7")
	if !ok {
		t.Fatal("bridge not rebuilt")
	}
	if !reflect.DeepEqual(b.Members, []string{"PJSIP/1001-1", "PJSIP/2002-1"}) {
		t.Errorf("members = %v", b.Members)
	}
	if d := b.Duration(clock.Now()); d != 90*time.Second {
		t.Errorf("Duration = %v, want 90s from the oldest leg", d)
	}
	ch, _ := s.Channel("PJSIP/1001-1")
	if ch.Age(clock.Now()) != 90*time.Second || ch.State != "Up" {
		t.Errorf("channel = %+v", ch)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Duration
		wantOK bool
	}{
		{"00:01:30", 90 * time.Second, true},
		{"1:00:00", time.Hour, true},
		{"42", 42 * time.Second, true},
		{"", 0, false},
		{"ab:cd", 0, false},
		{"-5", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDuration(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseDuration(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestChangeDescribe(t *testing.T) {
	tests := []struct {
		c    Change
		want string
	}{
		{Change{Kind: ChannelRemoved, Channel: "A", Detail: "Normal Clearing"}, "channel A hung up (Normal Clearing)"},
		{Change{Kind: ChannelRenamed, Channel: "B", OldName: "A"}, "channel A renamed to B"},
		{Change{Kind: MemberEntered, Channel: "A", Bridge: "B1"}, "A entered bridge B1"},
		{Change{}, ""},
	}
	for _, tt := range tests {
		if got := tt.c.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestSnapshotRowMovesChannel(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "PJSIP/a-1"))
	s.Apply(ev("CoreShowChannel", "Channel", "PJSIP/a-1", "BridgeId", "B2"))

	if got := members(t, s, "B1"); len(got) != 0 {
		t.Errorf("B1 members = %v, want empty after resync", got)
	}
	if got := members(t, s, "B2"); !reflect.DeepEqual(got, []string{"PJSIP/a-1"}) {
		t.Errorf("B2 members = %v", got)
	}
	if ch, _ := s.Channel("PJSIP/a-1"); ch.BridgeID != "B2" {
		t.Errorf("BridgeID = %q, want B2", ch.BridgeID)
	}

	// A row without a bridge clears the stale membership.
	s.Apply(ev("CoreShowChannel", "Channel", "PJSIP/a-1", "BridgeId", ""))
	if got := members(t, s, "B2"); len(got) != 0 {
		t.Errorf("B2 members = %v, want empty", got)
	}
	if ch, _ := s.Channel("PJSIP/a-1"); ch.BridgeID != "" {
		t.Errorf("BridgeID = %q, want empty", ch.BridgeID)
	}
}

func TestRenameOntoExistingName(t *testing.T) {
	s := NewStore()
	s.Apply(ev("Newchannel", "Channel", "A", "Uniqueid", "ua"))
	s.Apply(ev("Newchannel", "Channel", "B", "Uniqueid", "ub"))
	s.Apply(ev("BridgeEnter", "BridgeUniqueid", "B1", "Channel", "B"))

	if got := s.Apply(ev("Rename", "Channel", "A", "Newname", "B", "Uniqueid", "ua")); got.Kind != ChannelRenamed {
		t.Fatalf("Apply() kind = %v", got.Kind)
	}
	if _, ok := s.channelByUniqueID("ub"); ok {
		t.Error("displaced channel still indexed by unique id")
	}
	if ch, _ := s.channelByUniqueID("ua"); ch.Name != "B" {
		t.Errorf("unique id ua points at %q, want B", ch.Name)
	}
	if got := members(t, s, "B1"); len(got) != 0 {
		t.Errorf("B1 members = %v, displaced channel kept its membership", got)
	}

	// A late hangup for the displaced channel must not remove the renamed one.
	s.Apply(ev("Hangup", "Uniqueid", "ub"))
	ch, ok := s.Channel("B")
	if !ok || ch.UniqueID != "ua" {
		t.Errorf("Channel(B) = %+v, %v; want the renamed channel", ch, ok)
	}
}

func TestBridgeDestroyAcceptsBridgeID(t *testing.T) {
	s := NewStore()
	s.Apply(ev("BridgeEnter", "BridgeId", "B1", "Channel", "A"))
	if got := s.Apply(ev("BridgeDestroy", "BridgeId", "B1")); got.Kind != BridgeDestroyed {
		t.Fatalf("Apply() kind = %v, want bridge-destroyed", got.Kind)
	}
	if _, ok := s.Bridge("B1"); ok {
		t.Error("bridge still present")
	}
}
