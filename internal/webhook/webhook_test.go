package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// formBody encodes an interaction payload the way Slack posts it: a single
// x-www-form-urlencoded field named "payload" holding the JSON document.
func formBody(p interactionPayload) []byte {
	raw, _ := json.Marshal(p)
	values := url.Values{}
	values.Set("payload", string(raw))
	return []byte(values.Encode())
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	s := New(Config{Addr: ":0", Secret: "test-secret", PendingDir: dir})
	return s, dir
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleInteractionValidSignatureWritesDecision(t *testing.T) {
	s, dir := newTestServer(t)

	payload := formBody(interactionPayload{MutationID: "mut_1", Approved: true, ApprovedBy: "oncall"})
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("test-secret", ts, payload)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)

	data, err := os.ReadFile(filepath.Join(dir, "mut_1.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["approved"])
}

func TestHandleInteractionRejectsBadSignature(t *testing.T) {
	s, dir := newTestServer(t)

	payload := formBody(interactionPayload{MutationID: "mut_2", Approved: true})
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
	_, err := os.Stat(filepath.Join(dir, "mut_2.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleInteractionRejectsPathTraversalMutationID(t *testing.T) {
	s, dir := newTestServer(t)

	payload := formBody(interactionPayload{MutationID: "../../../../tmp/evil", Approved: true})
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("test-secret", ts, payload)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
	_, err := os.Stat(filepath.Join(dir, "..", "..", "..", "..", "tmp", "evil.json"))
	assert.True(t, os.IsNotExist(err), "decision file must not be written outside pendingDir")
}

func TestHandleInteractionRejectsStaleTimestamp(t *testing.T) {
	s, _ := newTestServer(t)

	payload := formBody(interactionPayload{MutationID: "mut_3", Approved: true})
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	sig := sign("test-secret", ts, payload)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
}

func TestHandleInteractionRejectsReplayedSignature(t *testing.T) {
	s, dir := newTestServer(t)

	payload := formBody(interactionPayload{MutationID: "mut_5", Approved: true})
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("test-secret", ts, payload)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	// A second POST with the exact same timestamp and signature is a
	// captured-and-replayed request; it must be rejected even though the
	// signature itself is still valid and within the freshness window.
	req2 := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req2.Header.Set("X-Signature-Timestamp", ts)
	req2.Header.Set("X-Signature", sig)
	rec2 := httptest.NewRecorder()
	s.mux().ServeHTTP(rec2, req2)

	assert.Equal(t, 401, rec2.Code)
	_, err := os.Stat(filepath.Join(dir, "mut_5.json"))
	assert.NoError(t, err, "first request's decision should still be on disk")
}

func TestHandleInteractionRemovesPendingFile(t *testing.T) {
	s, dir := newTestServer(t)
	pendingPath := filepath.Join(dir, "mut_4_pending.json")
	require.NoError(t, os.WriteFile(pendingPath, []byte(`{}`), 0o600))

	payload := formBody(interactionPayload{MutationID: "mut_4", Approved: false})
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("test-secret", ts, payload)

	req := httptest.NewRequest("POST", "/slack/interactions", bytes.NewReader(payload))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	_, err := os.Stat(pendingPath)
	assert.True(t, os.IsNotExist(err))
}
