package classify

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/callboard/callboard/internal/callstate"
)

func channel(name, context, caller, connected string) callstate.Channel {
	tech, peer := callstate.SplitName(name)
	return callstate.Channel{
		Name: name, Tech: tech, Peer: peer, Context: context,
		CallerNum: caller, ConnectedNum: connected,
	}
}

func TestClassifyDefaults(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		name string
		ch   callstate.Channel
		want Direction
	}{
		{"trunk context", channel("PJSIP/carrier-1", "from-trunk", "5551234567", "1001"), Inbound},
		{"context case", channel("PJSIP/carrier-1", "From-External", "5551234567", ""), Inbound},
		{"outbound prefix", channel("PJSIP/mytrunk-0000002a", "from-internal", "1001", "5551234567"), Outbound},
		{"extensions", channel("PJSIP/1001-1", "from-internal", "1001", "2002"), Internal},
		{"long caller", channel("PJSIP/1001-1", "from-internal", "123456", "2002"), Unknown},
		{"nothing known", channel("PJSIP/1001-1", "", "", ""), Unknown},
		{"context beats extension shape", channel("PJSIP/1001-1", "inbound", "1001", "2002"), Inbound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ch, rules); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHintWins(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		hint string
		want Direction
	}{
		{"outbound", Outbound},
		{"INTERNAL", Internal},
		{" inbound ", Inbound},
		{"sideways", Inbound}, // ignored; the context rule decides
		{"", Inbound},
	}
	for _, tt := range tests {
		ch := channel("PJSIP/carrier-1", "from-trunk", "", "")
		ch.DirectionHint = tt.hint
		if got := Classify(ch, rules); got != tt.want {
			t.Errorf("Classify(hint %q) = %v, want %v", tt.hint, got, tt.want)
		}
	}
}

func TestRuleOrderFirstMatchWins(t *testing.T) {
	rules, err := Compile([]Rule{
		{Name: "vip", Direction: Internal, Peers: []string{"vip*"}},
		{Name: "trunk", Direction: Outbound, ChannelPrefixes: []string{"PJSIP/vip"}},
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := Classify(channel("PJSIP/vipline-3", "", "", ""), rules); got != Internal {
		t.Errorf("Classify() = %v, want internal from the first rule", got)
	}
}

func TestRuleRequiresEveryCriterion(t *testing.T) {
	rules, err := Compile([]Rule{
		{Name: "both", Direction: Outbound, Contexts: []string{"from-internal"}, ConnectedPattern: `^\d{10}$`},
		{Name: "empty", Direction: Inbound},
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := Classify(channel("PJSIP/1001-1", "from-internal", "1001", "5551234567"), rules); got != Outbound {
		t.Errorf("full match = %v, want outbound", got)
	}
	if got := Classify(channel("PJSIP/1001-1", "from-internal", "1001", "2002"), rules); got != Unknown {
		t.Errorf("partial match = %v, want unknown (empty rule never matches)", got)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"no direction", Rule{Name: "x", Contexts: []string{"a"}}},
		{"bad regexp", Rule{Name: "x", Direction: Inbound, CallerPattern: "("}},
		{"bad connected", Rule{Name: "x", Direction: Inbound, ConnectedPattern: "[a-"}},
		{"bad glob", Rule{Name: "x", Direction: Inbound, Peers: []string{"[a-"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile([]Rule{tt.rule}); err == nil {
				t.Error("Compile() succeeded, want error")
			}
		})
	}
}

func TestBridgePlurality(t *testing.T) {
	rules := DefaultRules()
	in := channel("PJSIP/carrier-1", "from-trunk", "", "")
	out := channel("PJSIP/mytrunk-1", "", "", "")
	internal := channel("PJSIP/1001-1", "", "1001", "2002")
	unknown := channel("PJSIP/x-1", "", "", "")

	tests := []struct {
		name    string
		members []callstate.Channel
		want    Direction
	}{
		{"empty", nil, Unknown},
		{"all unknown", []callstate.Channel{unknown, unknown}, Unknown},
		{"single vote", []callstate.Channel{in, unknown}, Inbound},
		{"majority", []callstate.Channel{out, out, internal}, Outbound},
		{"tie", []callstate.Channel{in, out}, Unknown},
		{"tie with unknowns", []callstate.Channel{in, internal, unknown, unknown}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bridge(tt.members, rules); got != tt.want {
				t.Errorf("Bridge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRulesFromYAML(t *testing.T) {
	src := `
- name: queue
  direction: inbound
  contexts: [ext-queues]
- name: mobile
  direction: outbound
  connected_pattern: '^07\d{9}$'
`
	var raw []Rule
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	rules, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := Classify(channel("PJSIP/1001-1", "ext-queues", "", ""), rules); got != Inbound {
		t.Errorf("queue call = %v", got)
	}
	if got := Classify(channel("PJSIP/1001-1", "", "1001", "07123456789"), rules); got != Outbound {
		t.Errorf("mobile call = %v", got)
	}

	var bad []Rule
	if err := yaml.Unmarshal([]byte("- direction: sideways\n"), &bad); err == nil {
		t.Error("unknown direction accepted")
	}
}
