// Package notify announces detected app updates to a chat webhook.
package notify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "webhook-notifier"

// Webhook posts update announcements to a discord-compatible webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

type option func(*Webhook)

func WithLogger(logger *zap.Logger) option {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// NewWebhook returns a notifier posting to url.
// The http client uses a timeout of DefaultHTTPClientTimeout.
func NewWebhook(url string, opts ...option) *Webhook {
	w := Webhook{
		url: url,
		client: &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		},
	}

	for _, opt := range opts {
		opt(&w)
	}

	if w.logger == nil {
		w.logger = zap.L().Named(loggerName)
	}

	return &w
}

// Notify sends a form-encoded webhook message.
// It returns a *RequestError when the endpoint responds with a non-2xx
// status code.
func (w *Webhook) Notify(ctx context.Context, message, username, avatarURL string) error {
	form := url.Values{
		"content":    {message},
		"username":   {username},
		"avatar_url": {avatarURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		w.logger.Warn(
			"reading webhook response body failed",
			logfields.Event("webhook_reading_response_body_failed"),
			zap.Int("http_response_code", resp.StatusCode),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			Body:   body,
			Status: resp.StatusCode,
		}
	}

	w.logger.Debug(
		"webhook message sent",
		logfields.Event("webhook_message_sent"),
		zap.Int("http_response_code", resp.StatusCode),
	)

	return nil
}
