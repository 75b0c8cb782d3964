package board

import (
	"strings"
	"testing"
	"time"

	"github.com/callboard/callboard/internal/callstate"
	"github.com/callboard/callboard/internal/classify"
	"github.com/callboard/callboard/internal/console"
)

func leg(name, num, callerName string) console.Leg {
	return console.Leg{Channel: callstate.Channel{Name: name, CallerNum: num, CallerName: callerName}}
}

func call(id string, d time.Duration, legs ...console.Leg) console.Call {
	return console.Call{ID: id, Direction: classify.Inbound, Duration: d, Members: legs}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	if v := m.View(); !strings.Contains(v, "No active calls") {
		t.Errorf("empty view = %q", v)
	}
}

func TestViewRendersCalls(t *testing.T) {
	m := New()
	m.Width = 120
	m.SetCalls([]console.Call{
		call("B1", 75*time.Second, leg("PJSIP/a-1", "1001", "Alice"), leg("PJSIP/b-2", "2001", "")),
	})
	v := m.View()
	for _, want := range []string{"00:01:15", "B1", "Alice <1001>", "2001", "inbound"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestNavigationWraps(t *testing.T) {
	m := New()
	m.SetCalls([]console.Call{call("B1", 0), call("B2", 0), call("B3", 0)})

	m.MoveUp()
	if c, _ := m.Selected(); c.ID != "B3" {
		t.Errorf("MoveUp from top selected %q, want B3", c.ID)
	}
	m.MoveDown()
	if c, _ := m.Selected(); c.ID != "B1" {
		t.Errorf("MoveDown from bottom selected %q, want B1", c.ID)
	}
}

func TestMemberCursor(t *testing.T) {
	m := New()
	m.SetCalls([]console.Call{call("B1", 0, leg("A", "", ""), leg("B", "", ""))})

	if l, _ := m.SelectedMember(); l.Name != "A" {
		t.Fatalf("initial member = %q", l.Name)
	}
	m.NextMember()
	if l, _ := m.SelectedMember(); l.Name != "B" {
		t.Errorf("NextMember = %q", l.Name)
	}
	m.NextMember()
	if l, _ := m.SelectedMember(); l.Name != "A" {
		t.Errorf("NextMember wrap = %q", l.Name)
	}
	m.PrevMember()
	if l, _ := m.SelectedMember(); l.Name != "B" {
		t.Errorf("PrevMember wrap = %q", l.Name)
	}
}

func TestSetCallsFollowsSelection(t *testing.T) {
	m := New()
	m.SetCalls([]console.Call{call("B1", 0), call("B2", 0, leg("X", "", ""), leg("Y", "", ""))})
	m.MoveDown()
	m.NextMember()

	// B2 grew older and moved to the top.
	m.SetCalls([]console.Call{call("B2", time.Minute, leg("X", "", ""), leg("Y", "", "")), call("B1", 0)})
	if c, _ := m.Selected(); c.ID != "B2" {
		t.Errorf("selected %q after reorder, want B2", c.ID)
	}
	if l, _ := m.SelectedMember(); l.Name != "Y" {
		t.Errorf("member %q after reorder, want Y", l.Name)
	}
}

func TestSetCallsClampsWhenSelectionGone(t *testing.T) {
	m := New()
	m.SetCalls([]console.Call{call("B1", 0), call("B2", 0), call("B3", 0)})
	m.SelectedIdx = 2

	m.SetCalls([]console.Call{call("B1", 0)})
	if m.SelectedIdx != 0 {
		t.Errorf("SelectedIdx = %d, want 0", m.SelectedIdx)
	}
	m.SetCalls(nil)
	if _, ok := m.Selected(); ok {
		t.Error("Selected() on empty board reported a call")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Second, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{1500 * time.Millisecond, "00:00:01"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPartyLabel(t *testing.T) {
	tests := []struct {
		name string
		leg  console.Leg
		want string
	}{
		{"name and number", leg("PJSIP/a-1", "1001", "Alice"), "Alice <1001>"},
		{"number only", leg("PJSIP/a-1", "1001", ""), "1001"},
		{"peer", console.Leg{Channel: callstate.Channel{Name: "PJSIP/trunk-1", Peer: "trunk"}}, "trunk"},
		{"bare name", leg("Local/x", "", ""), "Local/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartyLabel(tt.leg); got != tt.want {
				t.Errorf("PartyLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
