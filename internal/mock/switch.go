// Package mock is an in-process manager-interface server. It keeps a small
// model of channels and bridges, answers the actions the console sends and
// emits the notifications a real switch would.
package mock

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callboard/callboard/internal/ami"
)

// Banner is the greeting line written on connect.
const Banner = "Asterisk Call Manager/5.0.1"

const outBuffer = 1024

type Options struct {
	Username string
	Secret   string
	Logger   *slog.Logger
	Now      func() time.Time
}

type channel struct {
	name          string
	uniqueID      string
	linkedID      string
	callerNum     string
	callerName    string
	connectedNum  string
	connectedName string
	context       string
	exten         string
	state         string
	bridge        string
	created       time.Time
}

type bridge struct {
	id      string
	members map[string]struct{}
}

// Switch is safe for concurrent use.
type Switch struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	conns    map[*conn]struct{}
	channels map[string]*channel
	bridges  map[string]*bridge
	actions  []ami.Message
	seq      int
	ln       net.Listener
	closed   bool

	wg sync.WaitGroup
}

func New(opts Options) *Switch {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Switch{
		opts:     opts,
		logger:   opts.Logger,
		conns:    make(map[*conn]struct{}),
		channels: make(map[string]*channel),
		bridges:  make(map[string]*bridge),
	}
}

// Listen accepts connections on addr in the background and returns the
// bound address.
func (s *Switch) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Warn("mock accept failed", "error", err)
				}
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Serve(c)
			}()
		}
	}()
	return ln.Addr().String(), nil
}

// Serve speaks the protocol on c until the peer logs off or disconnects.
func (s *Switch) Serve(nc net.Conn) {
	c := newConn(nc)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		nc.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writeLoop(s.logger)

	dec := ami.NewDecoder(nc)
	for {
		msg, err := dec.Decode()
		if err != nil {
			break
		}
		s.handle(c, msg)
	}

	s.mu.Lock()
	delete(s.conns, c)
	close(c.out)
	s.mu.Unlock()
	nc.Close()
}

// Close stops listening and drops every connection.
func (s *Switch) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	for c := range s.conns {
		c.nc.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

// Actions returns every action received so far, in order.
func (s *Switch) Actions() []ami.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ami.Message(nil), s.actions...)
}

// Channels returns the live channel names, sorted.
func (s *Switch) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Members returns the sorted members of a bridge and whether it exists.
func (s *Switch) Members(bridgeID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[bridgeID]
	if !ok {
		return nil, false
	}
	return sortedMembers(b), true
}

func (s *Switch) handle(c *conn, msg ami.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, msg)

	id := msg.ActionID()
	action := strings.ToLower(msg.Get("Action"))

	if !c.authed && action != "login" && action != "logoff" {
		c.send(response(id, "Error", "Permission denied"))
		return
	}

	switch action {
	case "login":
		if msg.Get("Username") != s.opts.Username || msg.Get("Secret") != s.opts.Secret {
			c.send(response(id, "Error", "Authentication failed"))
			return
		}
		c.authed = true
		c.events = !strings.EqualFold(msg.Get("Events"), "off")
		c.send(response(id, "Success", "Authentication accepted"))
		s.emitTo(c, ami.Field{Key: "Event", Value: "FullyBooted"}, ami.Field{Key: "Status", Value: "Fully Booted"})
	case "logoff":
		c.send(response(id, "Goodbye", "Thanks for all the fish."))
		c.send(nil)
	case "ping":
		c.send(append(response(id, "Success", ""), ami.Field{Key: "Ping", Value: "Pong"}))
	case "hangup":
		s.actionHangup(c, id, msg.Get("Channel"))
	case "bridgekick":
		s.actionKick(c, id, msg.Get("BridgeUniqueid"), msg.Get("Channel"))
	case "bridgedestroy":
		s.actionDestroy(c, id, msg.Get("BridgeUniqueid"))
	case "originate":
		s.actionOriginate(c, id, msg)
	case "coreshowchannels":
		s.actionShowChannels(c, id)
	default:
		c.send(response(id, "Error", "Invalid/unknown command"))
	}
}

func (s *Switch) actionHangup(c *conn, id, name string) {
	if _, ok := s.channels[name]; !ok {
		c.send(response(id, "Error", "No such channel"))
		return
	}
	c.send(response(id, "Success", "Channel Hungup"))
	s.hangupLocked(name, "Normal Clearing")
}

func (s *Switch) actionKick(c *conn, id, bridgeID, name string) {
	b, ok := s.bridges[bridgeID]
	if !ok {
		c.send(response(id, "Error", "Bridge not found"))
		return
	}
	if _, member := b.members[name]; !member {
		c.send(response(id, "Error", "Channel not in bridge"))
		return
	}
	c.send(response(id, "Success", "Channel has been kicked"))
	s.hangupLocked(name, "Normal Clearing")
}

func (s *Switch) actionDestroy(c *conn, id, bridgeID string) {
	b, ok := s.bridges[bridgeID]
	if !ok {
		c.send(response(id, "Error", "Bridge not found"))
		return
	}
	c.send(response(id, "Success", "Bridge disbanded"))
	for _, name := range sortedMembers(b) {
		s.leaveLocked(b, name)
		s.removeLocked(name, "Normal Clearing")
	}
	s.destroyLocked(b)
}

func (s *Switch) actionOriginate(c *conn, id string, msg ami.Message) {
	endpoint := msg.Get("Channel")
	if endpoint == "" || !strings.Contains(endpoint, "/") {
		c.send(response(id, "Error", "Channel not specified"))
		return
	}
	c.send(response(id, "Success", "Originate successfully queued"))

	_, num, _ := strings.Cut(endpoint, "/")
	ch := s.newChannelLocked(endpoint, callerID(msg.Get("CallerID"), num), party{num: msg.Get("Exten")}, msg.Get("Context"), msg.Get("Exten"))
	s.emitChannelLocked("Newchannel", ch)
	ch.state = "Up"
	s.emitChannelLocked("Newstate", ch)
	s.broadcast(
		ami.Field{Key: "Event", Value: "OriginateResponse"},
		ami.Field{Key: "ActionID", Value: id},
		ami.Field{Key: "Response", Value: "Success"},
		ami.Field{Key: "Channel", Value: ch.name},
		ami.Field{Key: "Context", Value: ch.context},
		ami.Field{Key: "Exten", Value: ch.exten},
		ami.Field{Key: "Reason", Value: "4"},
		ami.Field{Key: "Uniqueid", Value: ch.uniqueID},
	)
}

func (s *Switch) actionShowChannels(c *conn, id string) {
	resp := response(id, "Success", "Channels will follow")
	c.send(append(resp, ami.Field{Key: "EventList", Value: "start"}))

	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	now := s.opts.Now()
	for _, name := range names {
		ch := s.channels[name]
		fields := []ami.Field{
			{Key: "Event", Value: "CoreShowChannel"},
			{Key: "ActionID", Value: id},
		}
		fields = append(fields, channelFields(ch)...)
		fields = append(fields,
			ami.Field{Key: "BridgeId", Value: ch.bridge},
			ami.Field{Key: "Duration", Value: formatDuration(now.Sub(ch.created))},
		)
		s.emitTo(c, fields...)
	}
	s.emitTo(c,
		ami.Field{Key: "Event", Value: "CoreShowChannelsComplete"},
		ami.Field{Key: "ActionID", Value: id},
		ami.Field{Key: "EventList", Value: "Complete"},
		ami.Field{Key: "ListItems", Value: fmt.Sprint(len(names))},
	)
}

// hangupLocked ends a channel the way a basic two-party bridge does: the
// leg leaves, and once a single member remains it is hung up too.
func (s *Switch) hangupLocked(name, cause string) {
	ch, ok := s.channels[name]
	if !ok {
		return
	}
	if b, ok := s.bridges[ch.bridge]; ok {
		s.leaveLocked(b, name)
		s.removeLocked(name, cause)
		if len(b.members) == 1 {
			for _, peer := range sortedMembers(b) {
				s.leaveLocked(b, peer)
				s.removeLocked(peer, cause)
			}
		}
		if len(b.members) == 0 {
			s.destroyLocked(b)
		}
		return
	}
	s.removeLocked(name, cause)
}

func (s *Switch) leaveLocked(b *bridge, name string) {
	ch, ok := s.channels[name]
	if !ok {
		return
	}
	delete(b.members, name)
	ch.bridge = ""
	fields := append([]ami.Field{{Key: "Event", Value: "BridgeLeave"}}, bridgeFields(b)...)
	s.broadcast(append(fields, channelFields(ch)...)...)
}

func (s *Switch) removeLocked(name, cause string) {
	ch, ok := s.channels[name]
	if !ok {
		return
	}
	delete(s.channels, name)
	fields := append([]ami.Field{{Key: "Event", Value: "Hangup"}}, channelFields(ch)...)
	s.broadcast(append(fields,
		ami.Field{Key: "Cause", Value: "16"},
		ami.Field{Key: "Cause-txt", Value: cause},
	)...)
}

func (s *Switch) destroyLocked(b *bridge) {
	delete(s.bridges, b.id)
	s.broadcast(append([]ami.Field{{Key: "Event", Value: "BridgeDestroy"}}, bridgeFields(b)...)...)
}

func (s *Switch) newChannelLocked(endpoint string, from, to party, context, exten string) *channel {
	s.seq++
	now := s.opts.Now()
	uid := fmt.Sprintf("%d.%d", now.Unix(), s.seq)
	ch := &channel{
		name:          fmt.Sprintf("%s-%08x", endpoint, s.seq),
		uniqueID:      uid,
		linkedID:      uid,
		callerNum:     from.num,
		callerName:    from.name,
		connectedNum:  to.num,
		connectedName: to.name,
		context:       context,
		exten:         exten,
		state:         "Ring",
		created:       now,
	}
	s.channels[ch.name] = ch
	return ch
}

func (s *Switch) emitChannelLocked(event string, ch *channel) {
	s.broadcast(append([]ami.Field{{Key: "Event", Value: event}}, channelFields(ch)...)...)
}

// broadcast sends an event to every logged-in connection that wants events.
func (s *Switch) broadcast(fields ...ami.Field) {
	for c := range s.conns {
		s.emitTo(c, fields...)
	}
}

func (s *Switch) emitTo(c *conn, fields ...ami.Field) {
	if c.authed && c.events {
		c.send(append([]ami.Field(nil), fields...))
	}
}

func response(id, status, message string) []ami.Field {
	fields := []ami.Field{{Key: "Response", Value: status}}
	if id != "" {
		fields = append(fields, ami.Field{Key: "ActionID", Value: id})
	}
	if message != "" {
		fields = append(fields, ami.Field{Key: "Message", Value: message})
	}
	return fields
}

func channelFields(ch *channel) []ami.Field {
	return []ami.Field{
		{Key: "Channel", Value: ch.name},
		{Key: "ChannelStateDesc", Value: ch.state},
		{Key: "CallerIDNum", Value: orUnknown(ch.callerNum)},
		{Key: "CallerIDName", Value: orUnknown(ch.callerName)},
		{Key: "ConnectedLineNum", Value: orUnknown(ch.connectedNum)},
		{Key: "ConnectedLineName", Value: orUnknown(ch.connectedName)},
		{Key: "Context", Value: ch.context},
		{Key: "Exten", Value: ch.exten},
		{Key: "Priority", Value: "1"},
		{Key: "Uniqueid", Value: ch.uniqueID},
		{Key: "Linkedid", Value: ch.linkedID},
	}
}

func bridgeFields(b *bridge) []ami.Field {
	return []ami.Field{
		{Key: "BridgeUniqueid", Value: b.id},
		{Key: "BridgeType", Value: "basic"},
		{Key: "BridgeTechnology", Value: "simple_bridge"},
		{Key: "BridgeNumChannels", Value: fmt.Sprint(len(b.members))},
	}
}

func sortedMembers(b *bridge) []string {
	out := make([]string, 0, len(b.members))
	for name := range b.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func newBridgeID() string { return uuid.NewString() }

func orUnknown(s string) string {
	if s == "" {
		return "<unknown>"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// callerID parses `"Name" <num>` or `Name <num>`, falling back to num.
func callerID(v, fallback string) party {
	name, rest, ok := strings.Cut(v, "<")
	if !ok {
		if v == "" {
			return party{num: fallback}
		}
		return party{num: v}
	}
	num := strings.TrimSuffix(strings.TrimSpace(rest), ">")
	return party{name: strings.Trim(strings.TrimSpace(name), `"`), num: num}
}

// conn is one client connection. Every send happens under Switch.mu, and
// the connection is removed from the switch before out is closed.
type conn struct {
	nc     net.Conn
	out    chan []ami.Field
	authed bool
	events bool
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc, out: make(chan []ami.Field, outBuffer)}
}

// send queues one block. A nil block closes the connection once everything
// before it is written. A full buffer drops the block.
func (c *conn) send(fields []ami.Field) {
	select {
	case c.out <- fields:
	default:
	}
}

func (c *conn) writeLoop(logger *slog.Logger) {
	if _, err := io.WriteString(c.nc, Banner+"\r\n"); err != nil {
		return
	}
	enc := ami.NewEncoder(c.nc)
	for fields := range c.out {
		if fields == nil {
			c.nc.Close()
			continue
		}
		if err := enc.EncodeFields(fields); err != nil {
			logger.Debug("mock write failed", "error", err)
			c.nc.Close()
		}
	}
}
