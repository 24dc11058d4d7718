package trigger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	go_github "github.com/google/go-github/v43/github"
	"github.com/itchyny/gojq"
	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

const githubLoggerName = "github-trigger"

// GithubProvider listens for github-webhook http-requests at a http-server
// handler, validates them and forwards a ReleasePublished trigger event for
// every release event that matches the filter query.
type GithubProvider struct {
	logger        *zap.Logger
	webhookSecret []byte
	filterQuery   *gojq.Query
	c             chan<- *Event
}

type githubOption func(*GithubProvider)

func WithPayloadSecret(secret string) githubOption {
	return func(p *GithubProvider) {
		p.webhookSecret = []byte(secret)
	}
}

func WithGithubLogger(logger *zap.Logger) githubOption {
	return func(p *GithubProvider) {
		p.logger = logger
	}
}

// NewGithubProvider returns a provider that forwards matching release events
// to eventChan.
// filterQuery is a jq expression evaluated against the JSON payload of
// release events, it must evaluate to a single boolean.
func NewGithubProvider(eventChan chan<- *Event, filterQuery string, opts ...githubOption) (*GithubProvider, error) {
	query, err := gojq.Parse(filterQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing release filter query failed: %w", err)
	}

	p := GithubProvider{
		c:           eventChan,
		filterQuery: query,
	}

	for _, opt := range opts {
		opt(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(githubLoggerName)
	}

	return &p, nil
}

func (p *GithubProvider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := go_github.DeliveryID(req)
	hookType := go_github.WebHookType(req)

	logger := p.logger.With(
		zap.String("github.delivery_id", deliveryID),
		zap.String("github.webhook_type", hookType),
	)

	payload, err := go_github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := go_github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	releaseEvent, ok := event.(*go_github.ReleaseEvent)
	if !ok {
		logger.Debug(
			"ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)
		return
	}

	match, err := p.matchFilter(req, payload)
	if err != nil {
		logger.Error(
			"evaluating release filter query failed",
			logfields.Event("github_release_filter_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusInternalServerError)
		return
	}

	if !match {
		logger.Debug(
			"ignoring release event, filter query did not match",
			logfields.Event("github_release_event_filtered"),
			zap.String("github.release_action", releaseEvent.GetAction()),
		)
		return
	}

	ev := NewEvent(KindReleasePublished)
	ev.DeliveryID = deliveryID
	ev.ReleaseTag = releaseEvent.GetRelease().GetTagName()
	ev.JSON = payload

	select {
	case p.c <- ev:
		logger.Debug(
			"release event forwarded to channel",
			logfields.Event("github_event_forwarded"),
			logfields.ReleaseTag(ev.ReleaseTag),
		)

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("github_forwarding_event_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
	}
}

func (p *GithubProvider) matchFilter(req *http.Request, payload []byte) (bool, error) {
	var evUn any

	if err := json.Unmarshal(payload, &evUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(p.filterQuery.RunWithContext(req.Context(), evUn))
	if len(errs) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", p.filterQuery.String(), errString(errs))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), p.filterQuery.String())
	}

	boolResult, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], p.filterQuery.String(),
		)
	}

	return boolResult, nil
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}
