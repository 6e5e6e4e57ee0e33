package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/chorus/adapter"
	redisadapter "github.com/pithecene-io/chorus/adapter/redis"
	"github.com/pithecene-io/chorus/adapter/webhook"
	"github.com/pithecene-io/chorus/cli/config"
	"github.com/pithecene-io/chorus/engine"
	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/metrics"
	"github.com/pithecene-io/chorus/store"
	"github.com/pithecene-io/chorus/transport"
	"github.com/pithecene-io/chorus/transport/ws"
	"github.com/pithecene-io/chorus/types"
)

// ChatCommand returns the chat command: an interactive session that
// streams producer responses over a single duplex connection.
//
// Input lines go to the first configured actor; a line starting with
// "@actor " targets that actor instead. Lines "/quit" and "/stats" are
// local commands.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "url",
				Usage: "Websocket endpoint (overrides config)",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Transport kind: websocket or pipe",
			},
			&cli.StringSliceFlag{
				Name:  "actor",
				Usage: "Actor to register (repeatable, overrides config)",
			},
			&cli.DurationFlag{
				Name:  "ack-timeout",
				Usage: "Acknowledgement timeout for stream starts",
			},
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "Transcript retention before eviction",
			},
		},
		Action: chatAction,
	}
}

func chatAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	actors := cfg.ActorSet()
	if len(actors) == 0 {
		return cli.Exit("no actors configured: pass --actor or set actors in chorus.yaml", 1)
	}

	kind := cfg.Transport.Kind
	if kind == "" {
		kind = "websocket"
	}
	session := types.NewSessionMeta(kind)
	logger := log.NewLogger(session)
	collector := metrics.NewCollector(session.SessionID, kind)

	tr, err := buildTransport(cfg, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("transport: %v", err), 1)
	}
	defer tr.Close()

	ad, err := buildAdapter(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), 1)
	}

	st := store.New(logger)
	defer st.Close()

	sweeper := store.NewSweeper(st, store.SweeperConfig{
		Interval:  cfg.Store.SweepInterval.Duration,
		Retention: cfg.Store.Retention.Duration,
	}, logger, collector)
	sweeper.Start()
	defer sweeper.Stop()

	eng := engine.New(tr, st, session, engine.Config{
		AckTimeout: cfg.AckTimeout.Duration,
		OnFailure: func(actor string, detail *types.ErrorDetail) {
			fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", actor, detail.Code, detail.Message)
		},
		Adapter: &consoleAdapter{next: ad},
	}, logger, collector)
	defer eng.Close()

	for _, actor := range actors {
		eng.RegisterActor(actor)
	}

	fmt.Printf("session %s (actors: %s)\n", session.SessionID, strings.Join(actors, ", "))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nbye")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := dispatchLine(eng, collector, actors, line); done {
				return nil
			}
		}
	}
}

// dispatchLine routes one input line. Returns true when the session
// should end.
func dispatchLine(eng *engine.Engine, collector *metrics.Collector, actors []string, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/stats":
		snap := collector.Snapshot()
		fmt.Printf("streams: %d started, %d completed, %d failed; chunks: %d applied, %d rejected\n",
			snap.StreamsStarted, snap.StreamsCompleted,
			snap.StreamsFailed+snap.StreamsTimedOut+snap.StreamsAborted,
			snap.ChunksApplied, snap.ChunksRejected)
		return false
	}

	actor := actors[0]
	input := line
	if strings.HasPrefix(line, "@") {
		target, rest, ok := strings.Cut(line[1:], " ")
		if !ok || rest == "" {
			fmt.Fprintln(os.Stderr, "usage: @actor message")
			return false
		}
		actor = target
		input = strings.TrimSpace(rest)
		eng.RegisterActor(actor)
	}

	if _, err := eng.AppendHuman(input); err != nil {
		fmt.Fprintf(os.Stderr, "cannot record message: %v\n", err)
		return false
	}
	if _, err := eng.Start(actor, input); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", actor, err)
	}
	return false
}

// resolveConfig loads the YAML config (when given) and applies flag
// overrides. CLI flags always win.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if kind := c.String("transport"); kind != "" {
		cfg.Transport.Kind = kind
	}
	if url := c.String("url"); url != "" {
		cfg.Transport.URL = url
	}
	if actors := c.StringSlice("actor"); len(actors) > 0 {
		cfg.Actors = actors
	}
	if d := c.Duration("ack-timeout"); d > 0 {
		cfg.AckTimeout = config.Duration{Duration: d}
	}
	if d := c.Duration("retention"); d > 0 {
		cfg.Store.Retention = config.Duration{Duration: d}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildTransport(cfg *config.Config, logger *log.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "pipe":
		// The chat prompt owns stdin/stdout; running the frame transport
		// over the same pair would interleave frames with console I/O.
		// Embedders construct pipe.New over a dedicated stream pair.
		return nil, fmt.Errorf("pipe transport is not available in interactive chat; use websocket")
	case "websocket", "":
		return ws.Dial(cfg.Transport.URL, logger)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// buildAdapter constructs the configured notification adapter, or nil
// when none is configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	retries := 0
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}

	switch cfg.Adapter.Type {
	case "":
		return nil, nil
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     cfg.Adapter.URL,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Adapter.Type)
	}
}

// consoleAdapter prints finalized producer messages to stdout and
// forwards every event to the inner adapter when one is configured.
type consoleAdapter struct {
	next adapter.Adapter
}

func (a *consoleAdapter) Publish(ctx context.Context, event *adapter.MessageFinalizedEvent) error {
	if event.Origin != types.OriginHuman {
		marker := ""
		if event.Aborted {
			marker = " [interrupted]"
		}
		fmt.Printf("%s%s: %s\n", event.Origin, marker, event.Content)
	}
	if a.next != nil {
		return a.next.Publish(ctx, event)
	}
	return nil
}

func (a *consoleAdapter) Close() error {
	if a.next != nil {
		return a.next.Close()
	}
	return nil
}

var _ adapter.Adapter = (*consoleAdapter)(nil)
