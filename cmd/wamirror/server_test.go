package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wamirror/internal/errors"
	"wamirror/internal/ingest"
	"wamirror/internal/models"
	"wamirror/internal/notify"
	"wamirror/internal/service"
	"wamirror/internal/store"
)

const inboundPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550001111", "phone_number_id": "pn-1"},
				"contacts": [{"wa_id": "919876543210", "profile": {"name": "Ravi Kumar"}}],
				"messages": [{
					"from": "919876543210",
					"id": "wamid.inbound-1",
					"timestamp": "1754400000",
					"type": "text",
					"text": {"body": "Hi, is the order ready?"}
				}]
			}
		}]
	}]
}`

type testEnv struct {
	server *Server
	store  store.Store
	hub    *notify.Hub
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, mutate func(cfg *models.Config)) *testEnv {
	t.Helper()

	cfg := &models.Config{
		Server:  models.ServerConfig{Port: 0, AllowedOrigins: []string{"http://localhost:5173"}},
		Webhook: models.WebhookConfig{VerifyToken: "verify-me"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := quietLogger()
	st := store.NewMemory()
	hub := notify.NewHub(8, originHosts(cfg.Server.AllowedOrigins), logger)
	t.Cleanup(func() { _ = hub.Close() })

	msgService, err := service.NewMessageService(st, hub, logger)
	require.NoError(t, err)
	ingestor := ingest.New(st, hub, logger, ingest.Config{BusinessNumber: cfg.Business.PhoneNumber})

	return &testEnv{
		server: NewServer(cfg, ingestor, msgService, st, hub, logger, false),
		store:  st,
		hub:    hub,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorCode {
	t.Helper()
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestServer_WebhookIngestsAndServesThread(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(inboundPayload)))
	require.Equal(t, http.StatusOK, rec.Code)

	var report ingest.IngestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Messages)
	assert.Equal(t, 0, report.Failed)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/chats/919876543210", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var thread []models.ThreadMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	require.Len(t, thread, 1)
	assert.Equal(t, "wamid.inbound-1", thread[0].MessageID)
	assert.Equal(t, models.DirectionInbound, thread[0].Direction)
	assert.Equal(t, models.StatusReceived, thread[0].Status)
	require.NotNil(t, thread[0].Text)
	assert.Equal(t, "Hi, is the order ready?", *thread[0].Text)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var chats []models.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	require.Len(t, chats, 1)
	require.NotNil(t, chats[0].ContactName)
	assert.Equal(t, "Ravi Kumar", *chats[0].ContactName)
}

func TestServer_EmptyThreadIsEmptyArray(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/chats/15550009999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_WebhookRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{`{not json`, `[1,2]`, `null`, ``} {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, apperrors.ErrCodeMalformedPayload, errorCode(t, rec))
	}
}

func TestServer_WebhookAcceptsUnrecognizedShape(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"hello":"world"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var report ingest.IngestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.Units())
}

func TestServer_WebhookSignature(t *testing.T) {
	const secret = "a-webhook-secret-that-is-long-enough"
	env := newTestEnv(t, func(cfg *models.Config) { cfg.Webhook.Secret = secret })
	body := []byte(inboundPayload)

	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong algorithm", "sha1=" + strings.Repeat("a", 40), http.StatusUnauthorized},
		{"wrong digest", sign("other-secret", body), http.StatusUnauthorized},
		{"valid", sign(secret, body), http.StatusOK},
		{"valid uppercase hex", "sha256=" + strings.ToUpper(strings.TrimPrefix(sign(secret, body), "sha256=")), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(signatureHeader, tt.signature)
			}
			rec := env.do(req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_WebhookBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *models.Config) { cfg.Webhook.MaxBodyBytes = 16 })

	rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(inboundPayload)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_WebhookVerify(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		query string
		want  int
		body  string
	}{
		{"valid handshake", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusUnauthorized, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusUnauthorized, ""},
		{"no params", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))
			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestServer_WebhookVerifyDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *models.Config) { cfg.Webhook.VerifyToken = "" })

	rec := env.do(httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Send(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/send",
		strings.NewReader(`{"wa_id":"919876543210","text":"Your order shipped","messageId":"msg-out-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "msg-out-1", msg.MessageID)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	assert.Equal(t, models.StatusSent, msg.Status)
	require.NotNil(t, msg.ContactName)
	assert.Equal(t, "Unknown", *msg.ContactName)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/send",
		strings.NewReader(`{"wa_id":"919876543210","text":"again","messageId":"msg-out-1"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.ErrCodeConflict, errorCode(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/send", strings.NewReader(`{"wa_id":"919876543210"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, errorCode(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/send", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeMalformedPayload, errorCode(t, rec))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/chats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_WebsocketReceivesEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(inboundPayload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame struct {
		Event string         `json:"event"`
		Data  models.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.EventMessageCreated, frame.Event)
	assert.Equal(t, "wamid.inbound-1", frame.Data.MessageID)
}

func TestServer_CORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/send", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := env.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","store":"ok"}`, rec.Body.String())

	env.server.store = unreachableStore{Store: env.store}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Contains(t, snapshot, "counters")
	assert.Contains(t, snapshot, "timers")
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-from-proxy")
	rec := env.do(req)
	assert.Equal(t, "req-from-proxy", rec.Header().Get("X-Request-ID"))
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t,
		[]string{"localhost:5173", "whatsapp-messengers.vercel.app", "*"},
		originHosts([]string{"http://localhost:5173", "https://whatsapp-messengers.vercel.app", "not a url", "*"}))
	assert.Empty(t, originHosts(nil))
}
