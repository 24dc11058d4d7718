package trigger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/atlasacademy/appwatch/internal/cfg"
)

const testWebhookSecret = "hooksecret"

const releasePublishedPayload = `{
  "action": "published",
  "release": {"tag_name": "v2.3.1", "name": "Release v2.3.1"},
  "repository": {"name": "fgo-app-update", "owner": {"login": "atlasacademy"}}
}`

const releaseCreatedPayload = `{
  "action": "created",
  "release": {"tag_name": "v2.3.1"}
}`

func signPayload(t *testing.T, payload string) string {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, err := mac.Write([]byte(payload))
	require.NoError(t, err)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestProvider(t *testing.T, ch chan *Event) *GithubProvider {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	provider, err := NewGithubProvider(
		ch,
		cfg.DefReleaseFilterQuery,
		WithPayloadSecret(testWebhookSecret),
	)
	require.NoError(t, err)

	return provider
}

func TestReleasePublishedEventIsForwarded(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := newTestProvider(t, ch)

	payload := releasePublishedPayload
	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "release")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", signPayload(t, payload))

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, req)

	require.Equal(t, 200, resp.Code)
	require.Len(t, ch, 1)

	ev := <-ch
	assert.Equal(t, KindReleasePublished, ev.Kind)
	assert.Equal(t, "delivery-1", ev.DeliveryID)
	assert.Equal(t, "v2.3.1", ev.ReleaseTag)
	assert.JSONEq(t, payload, string(ev.JSON))
}

func TestUnpublishedReleaseEventIsFiltered(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := newTestProvider(t, ch)

	payload := releaseCreatedPayload
	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "release")
	req.Header.Set("X-GitHub-Delivery", "delivery-2")
	req.Header.Set("X-Hub-Signature-256", signPayload(t, payload))

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, req)

	assert.Equal(t, 200, resp.Code)
	assert.Empty(t, ch)
}

func TestNonReleaseEventIsIgnored(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := newTestProvider(t, ch)

	payload := `{"zen": "Keep it logically awesome."}`
	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-GitHub-Delivery", "delivery-3")
	req.Header.Set("X-Hub-Signature-256", signPayload(t, payload))

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, req)

	assert.Equal(t, 200, resp.Code)
	assert.Empty(t, ch)
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := newTestProvider(t, ch)

	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(releasePublishedPayload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "release")
	req.Header.Set("X-GitHub-Delivery", "delivery-4")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, req)

	assert.Equal(t, 400, resp.Code)
	assert.Empty(t, ch)
}

func TestFullChannelReturnsServiceUnavailable(t *testing.T) {
	ch := make(chan *Event) // unbuffered, nothing reads
	provider := newTestProvider(t, ch)

	payload := releasePublishedPayload
	req := httptest.NewRequest("POST", "/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "release")
	req.Header.Set("X-GitHub-Delivery", "delivery-5")
	req.Header.Set("X-Hub-Signature-256", signPayload(t, payload))

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, req)

	assert.Equal(t, 503, resp.Code)
}

func TestInvalidFilterQuery(t *testing.T) {
	_, err := NewGithubProvider(make(chan *Event), ".action ==")
	require.Error(t, err)
}
