// Package server exposes the codec over HTTP: WAV in, latent safetensors
// out, and the reverse. Handlers stay thin; all signal work lives in the
// codec and audio packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-seanet/internal/audio"
	"github.com/example/go-seanet/internal/codec"
	"github.com/example/go-seanet/internal/config"
	"github.com/example/go-seanet/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContentTypeLatent marks safetensors latent payloads on the wire.
const ContentTypeLatent = "application/x-safetensors"

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Coder is the slice of the codec the handlers need. *codec.Codec satisfies
// it; tests substitute failing implementations.
type Coder interface {
	Encode(ctx context.Context, pcm []float32) (*codec.Latent, error)
	Decode(ctx context.Context, lat *codec.Latent) ([]float32, error)
	SampleRate() int
	HopLength() int64
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   32 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps request body size; larger uploads get 413.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent codec passes. Zero or
// negative disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request codec deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics wires Prometheus instrumentation and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	coder Coder
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving the codec API: POST /v1/encode,
// POST /v1/decode, POST /v1/roundtrip, GET /healthz and, when metrics are
// configured, GET /metrics.
func NewHandler(coder Coder, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		coder: coder,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/v1/encode", h.handleEncode)
	mux.HandleFunc("/v1/decode", h.handleDecode)
	mux.HandleFunc("/v1/roundtrip", h.handleRoundtrip)

	if opts.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			opts.metrics.Registry(),
			promhttp.HandlerOpts{},
		))
	}

	return h.instrument(mux)
}

// instrument wraps the mux with request logging and, when configured,
// Prometheus accounting.
func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if h.opts.metrics != nil {
			h.opts.metrics.RequestStarted()
			defer h.opts.metrics.RequestFinished()
		}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)

		if h.opts.metrics != nil {
			h.opts.metrics.RecordHTTPRequest(r.URL.Path, strconv.Itoa(rec.status), elapsed.Seconds())
		}

		h.log.InfoContext(r.Context(), "request served",
			slog.String("method", r.Method),
			slog.String("route", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.Int64("bytes_out", rec.written),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)

	return n, err
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     buildVersion(),
		"sample_rate": h.coder.SampleRate(),
		"hop_length":  h.coder.HopLength(),
	})
}

// handleEncode reads a WAV body and responds with the latent frames as a
// safetensors payload.
func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	pcm, err := audio.DecodeWAV(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid WAV: "+err.Error())
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()

	lat, err := h.coder.Encode(ctx, pcm)
	if err != nil {
		h.writeCodecError(w, r, "encode", err)
		return
	}

	if h.opts.metrics != nil {
		h.opts.metrics.RecordEncode(len(pcm), time.Since(start).Seconds())
	}

	payload, err := codec.EncodeLatent(lat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", ContentTypeLatent)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleDecode reads a safetensors latent body and responds with WAV audio.
func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	lat, err := codec.DecodeLatent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid latent: "+err.Error())
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()

	pcm, err := h.coder.Decode(ctx, lat)
	if err != nil {
		h.writeCodecError(w, r, "decode", err)
		return
	}

	if h.opts.metrics != nil {
		h.opts.metrics.RecordDecode(len(pcm), time.Since(start).Seconds())
	}

	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// handleRoundtrip encodes and immediately decodes a WAV body, the debug path
// for listening to codec artifacts. Optional DSP query parameters (normalize,
// dc-block, fade-in-ms, fade-out-ms) post-process the reconstruction.
func (h *handler) handleRoundtrip(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	hooks, err := dspHooks(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pcm, err := audio.DecodeWAV(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid WAV: "+err.Error())
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	startEnc := time.Now()

	lat, err := h.coder.Encode(ctx, pcm)
	if err != nil {
		h.writeCodecError(w, r, "encode", err)
		return
	}

	if h.opts.metrics != nil {
		h.opts.metrics.RecordEncode(len(pcm), time.Since(startEnc).Seconds())
	}

	startDec := time.Now()

	out, err := h.coder.Decode(ctx, lat)
	if err != nil {
		h.writeCodecError(w, r, "decode", err)
		return
	}

	if h.opts.metrics != nil {
		h.opts.metrics.RecordDecode(len(out), time.Since(startDec).Seconds())
	}

	// Encode pads to a hop multiple; hand back exactly what came in.
	if len(out) > len(pcm) {
		out = out[:len(pcm)]
	}

	out = audio.ApplyHooks(out, hooks...)

	wav, err := audio.EncodeWAV(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// dspHooks translates roundtrip query parameters into audio hooks, applied
// in fixed order: normalize, dc-block, fades.
func dspHooks(r *http.Request) ([]audio.Hook, error) {
	q := r.URL.Query()

	var hooks []audio.Hook

	if isQueryTrue(q.Get("normalize")) {
		hooks = append(hooks, audio.PeakNormalize)
	}

	if isQueryTrue(q.Get("dc-block")) {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.DCBlock(s, audio.ExpectedSampleRate)
		})
	}

	for _, p := range []struct {
		name  string
		apply func([]float32, int, float64) []float32
	}{
		{"fade-in-ms", audio.FadeIn},
		{"fade-out-ms", audio.FadeOut},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}

		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid %s value %q", p.name, raw)
		}

		if ms > 0 {
			apply := p.apply
			hooks = append(hooks, func(s []float32) []float32 {
				return apply(s, audio.ExpectedSampleRate, ms)
			})
		}
	}

	return hooks, nil
}

func isQueryTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}

	return false
}

// readBody enforces the method and body-size policy shared by all codec
// endpoints.
func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}

		writeError(w, http.StatusBadRequest, "read body: "+err.Error())

		return nil, false
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body is required")
		return nil, false
	}

	return body, true
}

// acquire claims a worker slot, honouring cancellation while waiting. The
// returned release must be called once the codec pass finishes.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

// writeCodecError maps codec failures onto HTTP statuses: bad inputs are the
// client's fault, deadlines are 504, everything else is 500.
func (h *handler) writeCodecError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.log.WarnContext(r.Context(), op+" timed out", slog.String("error", err.Error()))
		writeError(w, http.StatusGatewayTimeout, op+" timed out")
	case errors.Is(err, codec.ErrLatentMismatch), errors.Is(err, codec.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful
// shutdown.
type Server struct {
	cfg             config.Config
	coder           Coder
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration
}

func New(cfg config.Config, coder Coder, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:             cfg,
		coder:           coder,
		metrics:         m,
		shutdownTimeout: 30 * time.Second,
	}
	if cfg.Server.ShutdownTimeout > 0 {
		s.shutdownTimeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return s
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(int64(s.cfg.Server.MaxBodyBytes)),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
	}
	if s.metrics != nil {
		handlerOpts = append(handlerOpts, WithMetrics(s.metrics))
	}

	h := NewHandler(s.coder, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks the health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/healthz") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
