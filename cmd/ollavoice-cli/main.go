// Command ollavoice-cli is a terminal front end: it reads prompts from
// stdin, prints the streamed reply and writes each spoken chunk to disk.
// With -server it drives a running ollavoice instance over its websocket.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/app"
	"github.com/ent0n29/ollavoice/internal/config"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/protocol"
	"github.com/ent0n29/ollavoice/internal/session"
)

type options struct {
	server  string
	outDir  string
	lang    string
	model   string
	noAudio bool
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ollavoice-cli: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.server != "" {
		err = runRemote(ctx, opts, os.Stdin, os.Stdout)
	} else {
		err = runLocal(ctx, opts, os.Stdin, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ollavoice-cli: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.server, "server", "", "base URL of a running ollavoice server (default: run in-process)")
	fs.StringVar(&opts.outDir, "out", "ollavoice-audio", "directory for synthesized audio chunks")
	fs.StringVar(&opts.lang, "lang", "", "conversation language (fr|en)")
	fs.StringVar(&opts.model, "model", "", "model to use instead of the configured default")
	fs.BoolVar(&opts.noAudio, "no-audio", false, "do not write audio files")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.server = strings.TrimRight(strings.TrimSpace(opts.server), "/")
	opts.lang = strings.ToLower(strings.TrimSpace(opts.lang))
	if opts.lang != "" && opts.lang != string(locale.French) && opts.lang != string(locale.English) {
		return options{}, fmt.Errorf("lang must be fr or en, got %q", opts.lang)
	}
	if opts.noAudio {
		opts.outDir = ""
	}
	return opts, nil
}

// sink prints replies and stores their audio.
type sink struct {
	mu  sync.Mutex
	out io.Writer
	dir string
	n   int
}

func newSink(out io.Writer, dir string) (*sink, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audio dir: %w", err)
		}
	}
	return &sink{out: out, dir: dir}, nil
}

func (s *sink) Emit(msg protocol.Outbound) {
	switch m := msg.(type) {
	case protocol.ResponseChunk:
		s.show(protocol.EventResponseChunk, m.Text, m.Audio)
	case protocol.Response:
		s.show(protocol.EventResponse, m.Text, m.Audio)
	case protocol.ResponseComplete:
		s.show(protocol.EventResponseComplete, "", nil)
	case protocol.Status:
		s.show(protocol.EventStatus, m.Message, nil)
	case protocol.Error:
		s.show(protocol.EventError, m.Message, nil)
	case protocol.Interrupt:
		s.show(protocol.EventInterrupt, m.Message, nil)
	case protocol.Transcript:
		s.show(protocol.EventTranscript, m.Text, nil)
	}
}

func (s *sink) show(event protocol.Event, text string, audio *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case protocol.EventResponseChunk, protocol.EventResponse:
		fmt.Fprintln(s.out, text)
	case protocol.EventResponseComplete:
		fmt.Fprintln(s.out)
	case protocol.EventTranscript:
		fmt.Fprintf(s.out, "> %s\n", text)
	default:
		fmt.Fprintf(s.out, "[%s] %s\n", event, text)
	}

	if audio == nil || s.dir == "" {
		return
	}
	data, err := base64.StdEncoding.DecodeString(*audio)
	if err != nil {
		log.Warn().Err(err).Msg("undecodable audio chunk")
		return
	}
	s.n++
	name := filepath.Join(s.dir, fmt.Sprintf("chunk-%04d.mp3", s.n))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("write audio chunk")
	}
}

func runLocal(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	observability.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	lang, ok := built.Catalog.Parse(cfg.DefaultLang)
	if !ok {
		lang = locale.DefaultLang
	}
	if opts.lang != "" {
		lang = locale.Lang(opts.lang)
	}
	model := built.Models.Default()
	if opts.model != "" {
		model = opts.model
	}
	sess := built.Sessions.Create(session.CreateOptions{
		Lang:         lang,
		Model:        model,
		QueueSize:    cfg.AudioQueueSize,
		HistoryLimit: cfg.ConversationLimit,
	})
	defer func() { _, _ = built.Sessions.End(sess.ID) }()

	sk, err := newSink(out, opts.outDir)
	if err != nil {
		return err
	}
	ctx = observability.SessionLogger(sess.ID).WithContext(ctx)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		built.Assistant.Reply(ctx, sess, text, sk)
		if sess.TakeEndedByStop() {
			return nil
		}
	}
	return scanner.Err()
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

type remoteEvent struct {
	Text    string  `json:"text"`
	Message string  `json:"message"`
	Audio   *string `json:"audio"`
}

func runRemote(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	target, err := wsURL(opts.server)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	sk, err := newSink(out, opts.outDir)
	if err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var env protocol.Envelope
			if err := sonic.Unmarshal(data, &env); err != nil {
				continue
			}
			var ev remoteEvent
			if len(env.Data) > 0 {
				_ = sonic.Unmarshal(env.Data, &ev)
			}
			text := ev.Text
			if text == "" {
				text = ev.Message
			}
			sk.show(env.Event, text, ev.Audio)
		}
	}()

	write := func(event protocol.Event, payload any) error {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return err
		}
		env, err := sonic.Marshal(protocol.Envelope{Event: event, Data: data})
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, env)
	}

	if opts.lang != "" {
		if err := write(protocol.EventChangeTTSLang, protocol.ChangeTTSLang{Lang: opts.lang}); err != nil {
			return err
		}
	}
	if opts.model != "" {
		if err := write(protocol.EventChangeModel, protocol.ChangeModel{Model: opts.model}); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("ws read: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := write(protocol.EventTextInput, protocol.TextInput{Text: text}); err != nil {
				return fmt.Errorf("ws write: %w", err)
			}
		}
	}
}
