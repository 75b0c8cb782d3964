// callboard is a live call-control console for an Asterisk manager
// interface. It mirrors the switch's bridges on screen and lets an operator
// hang up, kick, destroy and supervise calls.
//
// With --mock it starts an in-process switch that plays a rotating set of
// calls, for demos and UI work without a PBX.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/callboard/callboard/internal/ami"
	"github.com/callboard/callboard/internal/app"
	"github.com/callboard/callboard/internal/audit"
	"github.com/callboard/callboard/internal/callstate"
	"github.com/callboard/callboard/internal/config"
	"github.com/callboard/callboard/internal/console"
	"github.com/callboard/callboard/internal/control"
	"github.com/callboard/callboard/internal/mock"
	"github.com/callboard/callboard/internal/wallboard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	config    string
	host      string
	port      int
	user      string
	secret    string
	mock      bool
	logFile   string
	logLevel  string
	wallboard string
}

func run() error {
	var f flags
	flagSet := pflag.NewFlagSet("callboard", pflag.ContinueOnError)
	flagSet.StringVarP(&f.config, "config", "c", config.DefaultPath, "YAML config file")
	flagSet.StringVar(&f.host, "host", "", "manager host (overrides ami.host)")
	flagSet.IntVar(&f.port, "port", 0, "manager port (overrides ami.port)")
	flagSet.StringVarP(&f.user, "user", "u", "", "manager username (overrides ami.username)")
	flagSet.StringVar(&f.secret, "secret", "", "manager secret (overrides ami.secret; AMI_SECRET is read when empty)")
	flagSet.BoolVar(&f.mock, "mock", false, "run against an in-process mock switch")
	flagSet.StringVar(&f.logFile, "log-file", "", "write JSON log records to this file")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&f.wallboard, "wallboard", "", "serve the wallboard feed on this address (overrides wallboard.listen)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(f.config, flagSet.Changed("config"))
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, flagSet, f); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(f.logFile, f.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.mock {
		sw, addr, err := startMock(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer sw.Close()
		host, port, _ := net.SplitHostPort(addr)
		cfg.AMI.Host = host
		cfg.AMI.Port, _ = strconv.Atoi(port)
	}

	trail := audit.New(cfg.Console.AuditSize)
	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	trail.Addf(audit.Conn, "connected to %s as %s", cfg.AMI.Addr(), cfg.AMI.Username)

	store := callstate.NewStore(callstate.WithHintVariable(cfg.Classification.HintVariable))
	con := console.New(console.Deps{
		Store:      store,
		Dispatcher: control.NewDispatcher(client, cfg.SupervisorTarget(), cfg.AMI.ActionTimeout),
		Audit:      trail,
		Queue:      client.Queue(),
		Link:       client,
		Rules:      cfg.Rules(),
		Logger:     logger,
	})

	lost := lossSignal(client)
	go func() {
		select {
		case <-lost:
			trail.Addf(audit.Conn, "connection lost: %v", client.Err())
		case <-ctx.Done():
		}
	}()

	if cfg.Console.RefreshOnConnect {
		if err := con.Submit(ctx, console.Intent{Kind: console.Refresh}); err != nil {
			logger.Warn("initial channel sync failed", "error", err)
		}
	}

	if cfg.Wallboard.Listen != "" {
		if err := startWallboard(ctx, cfg, con, logger); err != nil {
			return err
		}
	}

	model := app.New(con, lost)
	program := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	final, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(app.Model); ok && m.Disconnected() {
		return fmt.Errorf("connection lost: %w", client.Err())
	}
	return nil
}

type link interface {
	Done() <-chan struct{}
	Err() error
}

// lossSignal closes the returned channel when the reader exits for any
// reason other than our own Close.
func lossSignal(l link) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		<-l.Done()
		if !errors.Is(l.Err(), ami.ErrClosed) {
			close(lost)
		}
	}()
	return lost
}

func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f flags) error {
	if fs.Changed("host") {
		cfg.AMI.Host = f.host
	}
	if fs.Changed("port") {
		cfg.AMI.Port = f.port
	}
	if fs.Changed("user") {
		cfg.AMI.Username = f.user
	}
	switch {
	case fs.Changed("secret"):
		cfg.AMI.Secret = f.secret
	case os.Getenv("AMI_SECRET") != "":
		cfg.AMI.Secret = os.Getenv("AMI_SECRET")
	}
	if fs.Changed("wallboard") {
		cfg.Wallboard.Listen = f.wallboard
	}
	if f.mock && cfg.AMI.Username == "" {
		cfg.AMI.Username = "callboard"
	}
	return cfg.Validate()
}

func newLogger(path, level string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("--log-level: %w", err)
	}
	if path == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl}))
	return logger, func() { file.Close() }, nil
}

func startMock(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mock.Switch, string, error) {
	sw := mock.New(mock.Options{
		Username: cfg.AMI.Username,
		Secret:   cfg.AMI.Secret,
		Logger:   logger.With("component", "mock"),
	})
	addr, err := sw.Listen("127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("start mock switch: %w", err)
	}
	go sw.RunScenario(ctx, mock.ScenarioOptions{})
	return sw, addr, nil
}

func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ami.Client, error) {
	addr := cfg.AMI.Addr()
	session, err := ami.Dial(ctx, addr, ami.Options{
		ConnectTimeout: cfg.AMI.ConnectTimeout,
		Logger:         logger.With("component", "ami"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	authCtx, cancel := context.WithTimeout(ctx, cfg.AMI.ConnectTimeout)
	defer cancel()
	if err := session.Authenticate(authCtx, cfg.AMI.Username, cfg.AMI.Secret); err != nil {
		session.Close()
		return nil, fmt.Errorf("login to %s: %w", addr, err)
	}

	client := ami.NewClient(session, ami.NewQueue(cfg.Console.QueueSize), logger.With("component", "client"))
	client.Start(ctx)
	return client, nil
}

func startWallboard(ctx context.Context, cfg *config.Config, con *console.Console, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Wallboard.Listen)
	if err != nil {
		return fmt.Errorf("wallboard: %w", err)
	}
	wl := logger.With("component", "wallboard")
	broadcaster := wallboard.NewBroadcaster(con, cfg.Wallboard.SnapshotInterval, wl)
	server := wallboard.NewServer(con, broadcaster, wallboard.Options{
		AllowedOrigins: cfg.Wallboard.AllowedOrigins,
		Token:          cfg.Wallboard.Token,
		MaxConns:       cfg.Wallboard.MaxConns,
		Logger:         wl,
	})
	go broadcaster.Run(ctx)
	go func() {
		if err := server.Serve(ctx, ln); err != nil {
			wl.Error("wallboard stopped", "error", err)
		}
	}()
	return nil
}
