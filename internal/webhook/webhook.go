// Package webhook serves the HTTP receiver the out-of-band approval
// channel calls back into: a signed decision POST and a health check.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/invagent/internal/logging"
)

const signatureFreshnessWindow = 300 * time.Second

// validMutationID matches the ids.NewMutationID shape ("mut_" + a UUID).
// mutationId comes from the signed interaction payload, not a trusted
// source, and is used to build a filesystem path below, so anything that
// doesn't look like an actual mutation ID is rejected before it reaches
// filepath.Join.
var validMutationID = regexp.MustCompile(`^mut_[a-zA-Z0-9-]+$`)

// Server serves the Slack-style interaction callback, a health check, and
// (when MetricsRegistry is set) a Prometheus scrape endpoint.
type Server struct {
	addr       string
	secret     string
	pendingDir string
	registry   *prometheus.Registry
	server     *http.Server
	logger     *logging.Logger
	replay     *replayCache
}

// Config configures a new Server.
type Config struct {
	Addr       string
	Secret     string
	PendingDir string

	// MetricsRegistry, when set, is scraped at GET /metrics.
	MetricsRegistry *prometheus.Registry
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		addr:       cfg.Addr,
		secret:     cfg.Secret,
		pendingDir: cfg.PendingDir,
		registry:   cfg.MetricsRegistry,
		logger:     logging.GetLogger("webhook"),
		replay:     newReplayCache(),
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /slack/interactions", s.handleInteraction)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoWithFields("starting webhook server", logging.Field("addr", s.addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type interactionPayload struct {
	MutationID string `json:"mutationId"`
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approvedBy,omitempty"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	ts := r.Header.Get("X-Signature-Timestamp")
	sig := r.Header.Get("X-Signature")
	if err := verifySignature(s.secret, ts, sig, body); err != nil {
		s.logger.WarnWithFields("webhook signature rejected", logging.Field("error", err.Error()))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if err := s.replay.checkAndRemember(ts+":"+sig, time.Now()); err != nil {
		s.logger.WarnWithFields("webhook signature replay rejected", logging.Field("error", err.Error()))
		http.Error(w, "signature already used", http.StatusUnauthorized)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	raw := form.Get("payload")
	if raw == "" {
		http.Error(w, "missing payload field", http.StatusBadRequest)
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if !validMutationID.MatchString(payload.MutationID) {
		http.Error(w, "invalid mutationId", http.StatusBadRequest)
		return
	}

	decision := "rejected"
	if payload.Approved {
		decision = "approved"
	}
	doc := map[string]interface{}{
		"mutationId": payload.MutationID,
		"approved":   payload.Approved,
		"decision":   decision,
		"approvedBy": payload.ApprovedBy,
	}
	if err := s.writeDecision(payload.MutationID, doc); err != nil {
		s.logger.ErrorWithFields("failed to write approval decision", logging.Field("error", err.Error()))
		http.Error(w, "failed to record decision", http.StatusInternalServerError)
		return
	}
	s.removePending(payload.MutationID)

	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeDecision(mutationID string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	path := filepath.Join(s.pendingDir, mutationID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Server) removePending(mutationID string) {
	_ = os.Remove(filepath.Join(s.pendingDir, mutationID+"_pending.json"))
}

// replayCache remembers signatures already presented within the freshness
// window, so a captured signed request cannot be replayed more than once
// before its timestamp ages out of verifySignature's window on its own.
type replayCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newReplayCache() *replayCache {
	return &replayCache{seen: make(map[string]time.Time)}
}

// checkAndRemember returns an error if key was already recorded within the
// freshness window. It also evicts entries that have aged out, so the map
// never grows past the number of distinct requests seen in one window.
func (c *replayCache) checkAndRemember(key string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, seenAt := range c.seen {
		if now.Sub(seenAt) > signatureFreshnessWindow {
			delete(c.seen, k)
		}
	}

	if _, ok := c.seen[key]; ok {
		return fmt.Errorf("signature already used")
	}
	c.seen[key] = now
	return nil
}

// verifySignature checks timestamp freshness within 300s, then HMAC-SHA256
// over "v0:{ts}:{body}" compared against the presented signature in
// constant time.
func verifySignature(secret, tsHeader, sigHeader string, body []byte) error {
	if tsHeader == "" || sigHeader == "" {
		return fmt.Errorf("missing signature headers")
	}

	tsUnix, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp header: %w", err)
	}
	ts := time.Unix(tsUnix, 0)
	if age := time.Since(ts); age > signatureFreshnessWindow || age < -signatureFreshnessWindow {
		return fmt.Errorf("timestamp outside freshness window")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + tsHeader + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(sigHeader)) != 1 {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
