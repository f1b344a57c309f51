package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pipelinewatch/internal/chat"
	"pipelinewatch/internal/config"
	"pipelinewatch/internal/feed"
	"pipelinewatch/internal/logger"
	"pipelinewatch/internal/metrics"
	"pipelinewatch/internal/pipeline"
	"pipelinewatch/internal/poll"
	"pipelinewatch/internal/push"
	"pipelinewatch/internal/submit"
)

const inboundBuffer = 256

func parseFlags() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Pipeline backend base URL")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Feed refresh interval")
	flag.BoolVar(&cfg.PushEnabled, "push", cfg.PushEnabled, "Consume the server push stream")
	flag.BoolVar(&cfg.PushReconnect, "push-reconnect", cfg.PushReconnect, "Reconnect the push stream after it ends")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path (empty logs to stderr)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	flag.BoolVar(&cfg.AltScreen, "alt-screen", cfg.AltScreen, "Use alternate screen buffer")
	flag.Parse()

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.PollInterval = clampDuration(cfg.PollInterval, time.Second, time.Minute)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app owns the synchronization core and the goroutines that feed it.
type app struct {
	baseURL   string
	logger    *zap.Logger
	store     *feed.Store
	syncer    *feed.Syncer
	scheduler *poll.Scheduler
	channel   *push.Channel
	chat      *chat.Session
	submit    *submit.Controller
	feedback  *submit.Feedback
	inbound   chan tea.Msg
	wg        sync.WaitGroup

	pushMu   sync.Mutex
	pushLast push.State
	pushSeen bool
}

func newApp(cfg *config.Config, log *zap.Logger, dash *metrics.Dashboard) *app {
	a := &app{
		baseURL: cfg.BaseURL,
		logger:  log,
		inbound: make(chan tea.Msg, inboundBuffer),
	}
	client := pipeline.NewClient(cfg.BaseURL,
		pipeline.WithRateLimit(cfg.RequestsPerSecond, cfg.RequestBurst),
		pipeline.WithLogger(log.Named("client")),
	)
	a.store = feed.NewStore(feed.WithOnChange(func(kind feed.Kind) {
		a.post(feedChangedMsg{kind: kind})
	}))
	a.syncer = feed.NewSyncer(a.store, client,
		feed.WithLogger(log.Named("feed")),
		feed.WithMetrics(dash),
		feed.WithTimeout(cfg.RequestTimeout),
	)
	a.scheduler = poll.New(cfg.PollInterval, a.syncer,
		poll.Immediately(),
		poll.WithLogger(log.Named("poll")),
	)
	if cfg.PushEnabled {
		a.channel = push.NewChannel(client, a.syncer,
			push.WithLogger(log.Named("push")),
			push.WithMetrics(dash),
			push.WithReconnect(cfg.PushReconnect, cfg.PushBackoffMin, cfg.PushBackoffMax),
			push.WithStateHook(a.setPushState),
		)
	}
	a.chat = chat.NewSession(client,
		chat.WithTimeout(cfg.ChatTimeout),
		chat.WithLogger(log.Named("chat")),
		chat.WithMetrics(dash),
		chat.WithOnChange(func() { a.post(chatChangedMsg{}) }),
	)
	a.feedback = submit.NewFeedback(cfg.NoticeDuration, func() { a.post(noticeChangedMsg{}) })
	a.submit = submit.NewController(client, a.syncer,
		submit.WithTimeout(cfg.SubmitTimeout),
		submit.WithLogger(log.Named("submit")),
		submit.WithMetrics(dash),
		submit.WithFeedback(a.feedback),
	)
	return a
}

// setPushState records the latest stream state for the header and wakes the UI.
func (a *app) setPushState(state push.State) {
	a.pushMu.Lock()
	a.pushLast = state
	a.pushSeen = true
	a.pushMu.Unlock()
	a.post(pushStateMsg{})
}

// pushState reports the latest stream state and whether one was recorded yet.
func (a *app) pushState() (push.State, bool) {
	a.pushMu.Lock()
	defer a.pushMu.Unlock()
	return a.pushLast, a.pushSeen
}

// post hands a change notification to the UI without blocking the producer. Views read
// live state, so a dropped notification only delays a redraw.
func (a *app) post(msg tea.Msg) {
	select {
	case a.inbound <- msg:
	default:
	}
}

func (a *app) start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.scheduler.Run(ctx)
	}()
	if a.channel != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.channel.Run(ctx)
		}()
	}
}

// stop must run after ctx is canceled.
func (a *app) stop() {
	a.wg.Wait()
	a.syncer.Close()
	a.feedback.Stop()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}

func clampDuration(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline-tui: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline-tui: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	dash := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg, log.Named("metrics"))
	}

	a := newApp(cfg, log, dash)
	a.start(ctx)
	log.Info("dashboard started",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("push", cfg.PushEnabled),
	)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(ctx, a), opts...)
	_, runErr := p.Run()

	cancel()
	a.stop()
	log.Info("dashboard stopped")
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "pipeline-tui fatal error: %v\n", runErr)
		os.Exit(1)
	}
}
