package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/calendar-1m/project/internal/platform/env"
	"github.com/calendar-1m/project/internal/platform/logging"
	"github.com/calendar-1m/project/internal/platform/metrics"
	"github.com/joho/godotenv"
)

type config struct {
	APIBase          string
	Users            int
	SetupConcurrency int
	StartupWait      time.Duration
	Duration         time.Duration
	RampUp           time.Duration
	ActionsPerSecond float64
	RequestTimeout   time.Duration
	MetricsAddr      string
	Password         string
	EnableStream     bool
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

type eventResponse struct {
	Event struct {
		ID    string    `json:"id"`
		Start time.Time `json:"start"`
	} `json:"event"`
}

// virtualUser owns one account and the ids of the events it created.
type virtualUser struct {
	index int
	email string
	token string

	mu     sync.Mutex
	events []string
}

type runner struct {
	cfg    config
	runID  string
	logger *slog.Logger
	api    *http.Client
	stream *http.Client

	ok      atomic.Int64
	failed  atomic.Int64
	streams atomic.Int64
}

var (
	requestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "calendar_loadgen_requests_total",
		Help: "HTTP requests sent by the load generator.",
	}, []string{"endpoint", "method", "status", "outcome"})

	actionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "calendar_loadgen_actions_total",
		Help: "Calendar actions executed by the load generator.",
	}, []string{"action", "outcome"})

	virtualUsers = metrics.NewGauge(metrics.Opts{
		Name: "calendar_loadgen_virtual_users",
		Help: "Virtual users currently sending actions.",
	})

	openStreams = metrics.NewGauge(metrics.Opts{
		Name: "calendar_loadgen_open_streams",
		Help: "Virtual users holding an open calendar stream.",
	})
)

func init() {
	metrics.Default.MustRegister(requestsTotal, actionsTotal, virtualUsers, openStreams)
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(env.String("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if cfg.Users <= 0 || cfg.SetupConcurrency <= 0 {
		logger.Error("LOADGEN_USERS and LOADGEN_SETUP_CONCURRENCY must be > 0")
		os.Exit(1)
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := baseCtx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
	}

	go runMetricsServer(logger, cfg.MetricsAddr)

	transport := &http.Transport{
		MaxIdleConns:        cfg.Users * 4,
		MaxIdleConnsPerHost: cfg.Users * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	r := &runner{
		cfg:    cfg,
		runID:  strconv.FormatInt(time.Now().UTC().UnixNano(), 36),
		logger: logger,
		api:    &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		stream: &http.Client{Transport: transport},
	}

	if err := r.waitReady(ctx); err != nil {
		logger.Error("calendar api not ready", "err", err)
		os.Exit(1)
	}
	users := r.setupUsers(ctx)
	if len(users) == 0 {
		logger.Error("no virtual users could sign up")
		os.Exit(1)
	}
	logger.Info("load started", "users", len(users), "duration", cfg.Duration, "stream", cfg.EnableStream, "rate_per_user", cfg.ActionsPerSecond)

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runUser(ctx, u)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	logger.Info("load complete", "ok", r.ok.Load(), "failed", r.failed.Load())
}

func loadConfig() config {
	return config{
		APIBase:          strings.TrimRight(env.String("LOADGEN_API_BASE", "http://localhost:8080"), "/"),
		Users:            env.Int("LOADGEN_USERS", 100),
		SetupConcurrency: env.Int("LOADGEN_SETUP_CONCURRENCY", 20),
		StartupWait:      env.Duration("LOADGEN_STARTUP_WAIT", 2*time.Minute),
		Duration:         env.Duration("LOADGEN_DURATION", 5*time.Minute),
		RampUp:           env.Duration("LOADGEN_RAMP_UP", 30*time.Second),
		ActionsPerSecond: floatEnv("LOADGEN_ACTIONS_PER_USER_PER_SECOND", 0.3),
		RequestTimeout:   env.Duration("LOADGEN_REQUEST_TIMEOUT", 10*time.Second),
		MetricsAddr:      env.String("LOADGEN_METRICS_ADDR", ":9099"),
		Password:         env.String("LOADGEN_PASSWORD", "load-test-pass-123"),
		EnableStream:     env.Bool("LOADGEN_ENABLE_STREAM", true),
	}
}

func (r *runner) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupWait)
	lastErr := errors.New("timeout")
	for time.Now().Before(deadline) {
		status, err := r.request(ctx, "readyz", http.MethodGet, "/readyz", "", nil, nil, http.StatusOK)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("status=%d: %w", status, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return lastErr
}

func (r *runner) setupUsers(ctx context.Context) []*virtualUser {
	sem := make(chan struct{}, r.cfg.SetupConcurrency)
	var (
		mu    sync.Mutex
		users []*virtualUser
		wg    sync.WaitGroup
	)
	for i := range r.cfg.Users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			u, err := r.signUp(ctx, i)
			if err != nil {
				r.logger.Warn("sign up failed", "index", i, "err", err)
				return
			}
			mu.Lock()
			users = append(users, u)
			mu.Unlock()
		}()
	}
	wg.Wait()
	r.logger.Info("sign up complete", "ok", len(users), "failed", r.cfg.Users-len(users))
	return users
}

// signUp registers a fresh account, falling back to login when a previous
// run with the same id already created it.
func (r *runner) signUp(ctx context.Context, idx int) (*virtualUser, error) {
	u := &virtualUser{index: idx, email: fmt.Sprintf("load-%s-%04d@example.com", r.runID, idx)}
	creds := map[string]string{"email": u.email, "password": r.cfg.Password}

	var auth authResponse
	status, err := r.request(ctx, "register", http.MethodPost, "/api/v1/auth/register", "", creds, &auth, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict {
		if _, err := r.request(ctx, "login", http.MethodPost, "/api/v1/auth/login", "", creds, &auth, http.StatusOK); err != nil {
			return nil, err
		}
	}
	if auth.AccessToken == "" {
		return nil, fmt.Errorf("empty access token for %s", u.email)
	}
	u.token = auth.AccessToken
	return u, nil
}

func (r *runner) runUser(ctx context.Context, u *virtualUser) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(max(r.cfg.Users, 1)) * float64(u.index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if r.cfg.EnableStream {
		go r.streamLoop(ctx, u)
	}

	virtualUsers.Inc()
	defer virtualUsers.Dec()

	interval := time.Second
	if r.cfg.ActionsPerSecond > 0 {
		interval = max(time.Duration(float64(time.Second)/r.cfg.ActionsPerSecond), 25*time.Millisecond)
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(u.index)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(rng.Int64N(int64(interval)))):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.act(ctx, u, rng)
		}
	}
}

// act mixes creates, start-time edits, deletes and reminder reads.
func (r *runner) act(ctx context.Context, u *virtualUser, rng *rand.Rand) {
	id, ok := u.pick(rng)
	choice := rng.Float64()
	switch {
	case !ok || choice < 0.5:
		r.createEvent(ctx, u, rng)
	case choice < 0.75:
		r.moveEvent(ctx, u, rng, id)
	case choice < 0.9:
		r.deleteEvent(ctx, u, id)
	default:
		_, err := r.request(ctx, "reminders", http.MethodGet, "/api/v1/reminders", u.token, nil, nil, http.StatusOK)
		recordAction("reminders", err)
	}
}

func (r *runner) createEvent(ctx context.Context, u *virtualUser, rng *rand.Rand) {
	start := time.Now().UTC().Truncate(time.Hour).Add(time.Duration(1+rng.IntN(24*30)) * time.Hour)
	payload := map[string]any{
		"title":         fmt.Sprintf("Load event %d", rng.IntN(1_000_000)),
		"start":         start,
		"end":           start.Add(time.Duration(1+rng.IntN(4)) * 30 * time.Minute),
		"reminder":      rng.IntN(2) == 0,
		"reminder_days": rng.IntN(8),
	}
	var resp eventResponse
	_, err := r.request(ctx, "create_event", http.MethodPost, "/api/v1/events", u.token, payload, &resp, http.StatusCreated)
	if err == nil {
		u.add(resp.Event.ID)
	}
	recordAction("create", err)
}

func (r *runner) moveEvent(ctx context.Context, u *virtualUser, rng *rand.Rand, id string) {
	start := time.Now().UTC().Truncate(time.Hour).Add(time.Duration(1+rng.IntN(24*30)) * time.Hour)
	_, err := r.request(ctx, "patch_event", http.MethodPatch, "/api/v1/events/"+id, u.token, map[string]any{"start": start}, nil, http.StatusOK, http.StatusNotFound)
	recordAction("move", err)
}

func (r *runner) deleteEvent(ctx context.Context, u *virtualUser, id string) {
	_, err := r.request(ctx, "delete_event", http.MethodDelete, "/api/v1/events/"+id, u.token, nil, nil, http.StatusNoContent, http.StatusNotFound)
	if err == nil {
		u.remove(id)
	}
	recordAction("delete", err)
}

func recordAction(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

func (r *runner) streamLoop(ctx context.Context, u *virtualUser) {
	for ctx.Err() == nil {
		if err := r.readStream(ctx, u); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Debug("stream reconnect", "email", u.email, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(1200 * time.Millisecond):
		}
	}
}

func (r *runner) readStream(ctx context.Context, u *virtualUser) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIBase+"/events?token="+u.token, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := r.stream.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("stream_open", http.MethodGet, "0", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues("stream_open", http.MethodGet, status, "error").Inc()
		return fmt.Errorf("unexpected stream status: %d", resp.StatusCode)
	}
	requestsTotal.WithLabelValues("stream_open", http.MethodGet, status, "success").Inc()

	openStreams.Inc()
	r.streams.Add(1)
	defer openStreams.Dec()
	defer r.streams.Add(-1)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
	}
	if ctx.Err() != nil {
		return context.Canceled
	}
	return scanner.Err()
}

func (r *runner) request(ctx context.Context, endpoint, method, path, token string, payload, out any, expected ...int) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.APIBase+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.api.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, method, "0", "error").Inc()
		r.failed.Add(1)
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)

	status := strconv.Itoa(resp.StatusCode)
	if err == nil && !slices.Contains(expected, resp.StatusCode) {
		err = fmt.Errorf("unexpected status=%d body=%.240s", resp.StatusCode, raw)
	}
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, method, status, "error").Inc()
		r.failed.Add(1)
		return resp.StatusCode, err
	}
	requestsTotal.WithLabelValues(endpoint, method, status, "success").Inc()
	r.ok.Add(1)
	if out != nil && len(raw) > 0 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("progress", "ok", r.ok.Load(), "failed", r.failed.Load(), "open_streams", r.streams.Load())
		}
	}
}

func runMetricsServer(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("loadgen metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("loadgen metrics server failed", "err", err)
	}
}

func (u *virtualUser) add(id string) {
	if id == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, id)
}

func (u *virtualUser) pick(rng *rand.Rand) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.events) == 0 {
		return "", false
	}
	return u.events[rng.IntN(len(u.events))], true
}

func (u *virtualUser) remove(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, existing := range u.events {
		if existing == id {
			u.events[i] = u.events[len(u.events)-1]
			u.events = u.events[:len(u.events)-1]
			return
		}
	}
}

func floatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
