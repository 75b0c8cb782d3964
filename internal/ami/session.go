package ami

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Authenticated
	Failed
)

var stateNames = map[State]string{
	Disconnected:   "disconnected",
	Connecting:     "connecting",
	Authenticating: "authenticating",
	Authenticated:  "authenticated",
	Failed:         "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Status is a State plus the failure reason when State is Failed.
type Status struct {
	State  State
	Reason string
}

// Options tunes a Session. Zero values fall back to the defaults below.
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	LogoffTimeout  time.Duration
	BannerWindow   time.Duration
	BannerLines    int
	Logger         *slog.Logger
}

const (
	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultLogoffTimeout  = time.Second
	defaultBannerWindow   = 250 * time.Millisecond
	defaultBannerLines    = 5
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.LogoffTimeout <= 0 {
		o.LogoffTimeout = defaultLogoffTimeout
	}
	if o.BannerWindow <= 0 {
		o.BannerWindow = defaultBannerWindow
	}
	if o.BannerLines == 0 {
		o.BannerLines = defaultBannerLines
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Session owns one manager connection. It is the only writer to the wire;
// reads go through Next and must come from a single goroutine.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	dec    *Decoder
	enc    *Encoder
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	state  State
	reason string

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr and discards the greeting banner, if any.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	s := NewSession(conn, opts)
	s.drainBanner()
	return s, nil
}

// NewSession wraps an established connection. Banner draining is left to
// the caller (Dial does it).
func NewSession(conn net.Conn, opts Options) *Session {
	opts = opts.withDefaults()
	reader := bufio.NewReaderSize(conn, readBufferSize)
	s := &Session{
		conn:   conn,
		reader: reader,
		dec:    NewDecoder(reader),
		enc:    NewEncoder(conn),
		opts:   opts,
		logger: opts.Logger,
		state:  Connecting,
	}
	s.dec.OnMalformed = func(line string) {
		s.logger.Debug("dropped malformed line", "line", line, "error", ErrMalformedLine)
	}
	return s
}

// drainBanner reads and discards up to BannerLines lines inside the banner
// window. Running out of time or lines is normal.
func (s *Session) drainBanner() {
	if s.opts.BannerLines < 0 {
		return
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.BannerWindow)); err != nil {
		return
	}
	defer s.conn.SetReadDeadline(time.Time{})
	for i := 0; i < s.opts.BannerLines; i++ {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		s.logger.Debug("discarded banner line", "line", strings.TrimSpace(line))
	}
}

// Authenticate logs in and blocks until the switch answers. Any answer other
// than Success, and any read failure before one arrives, fails the session.
func (s *Session) Authenticate(ctx context.Context, user, secret string) error {
	s.setState(Authenticating, "")

	login := NewAction("Login", "Username", user, "Secret", secret, "Events", "on")
	login.ID = uuid.NewString()
	if err := s.Send(login); err != nil {
		s.fail(err)
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if stop() {
			return
		}
		s.conn.SetReadDeadline(time.Time{})
	}()

	for {
		msg, err := s.dec.Decode()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = &TransportError{Op: "login", Err: ctxErr}
			}
			s.fail(err)
			return err
		}
		if !msg.Has("Response") {
			continue
		}
		if strings.EqualFold(msg.Response(), "success") {
			s.setState(Authenticated, "")
			s.logger.Info("authenticated", "user", user)
			return nil
		}
		authErr := &AuthenticationError{Message: msg.Get("Message")}
		s.fail(authErr)
		return authErr
	}
}

// Next returns the next inbound message. Notifications and responses share
// this one stream.
func (s *Session) Next() (Message, error) {
	msg, err := s.dec.Decode()
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return msg, nil
}

// Send writes one action. It never reads.
func (s *Session) Send(a Action) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return s.enc.Encode(a)
}

// Close sends a best-effort Logoff and releases the connection. Safe to call
// more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.LogoffTimeout))
		if err := s.enc.Encode(NewAction("Logoff")); err != nil {
			s.logger.Debug("logoff not delivered", "error", err)
		}
		s.writeMu.Unlock()

		s.mu.Lock()
		if s.state != Failed {
			s.state = Disconnected
		}
		s.mu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Status returns the current state and failure reason.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Reason: s.reason}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.Status().State
}

// Malformed returns the number of inbound lines dropped by the codec.
func (s *Session) Malformed() int64 {
	return s.dec.Malformed()
}

func (s *Session) setState(st State, reason string) {
	s.mu.Lock()
	s.state = st
	s.reason = reason
	s.mu.Unlock()
}

// fail marks the session failed unless it was closed deliberately, in which
// case the resulting read error is expected.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected || s.state == Failed {
		return
	}
	s.state = Failed
	s.reason = err.Error()
}

// isClosedConn reports whether err came from reading a connection we closed.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
