// Package store checks app store pages for the currently published version
// of an app and detects updates against a version-controlled state file.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko)" +
	" Chrome/89.0.4389.90 Safari/537.36"

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "store"

var (
	// version string embedded in the play store page data, e.g. [[["2.3.1"]]
	playVersionRe = regexp.MustCompile(`\[\[\[\"((?:\d+\.)+\d+)\"\]\]`)
	// localized label prefixes that can precede the play store version
	versionLabelRe = regexp.MustCompile(`バージョン|Version|版本`)
	macVersionRe   = regexp.MustCompile(`Version (\d+)\.(\d+)\.(\d+)`)
)

// Store resolves the published version of the watched app in one app store.
type Store struct {
	typ       Type
	url       string
	avatarURL string
	client    *http.Client
	logger    *zap.Logger
}

type storeOption func(*Store)

func WithHTTPClient(client *http.Client) storeOption {
	return func(s *Store) {
		s.client = client
	}
}

func WithLogger(logger *zap.Logger) storeOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(typ Type, url, avatarURL string, opts ...storeOption) *Store {
	s := Store{
		typ:       typ,
		url:       url,
		avatarURL: avatarURL,
	}

	for _, opt := range opts {
		opt(&s)
	}

	if s.client == nil {
		s.client = &http.Client{Timeout: DefaultHTTPClientTimeout}
	}

	if s.logger == nil {
		s.logger = zap.L().Named(loggerName).With(logfields.Store(typ.String()))
	}

	return &s
}

// Name returns the display name of the store.
func (s *Store) Name() string {
	return s.typ.String()
}

func (s *Store) AvatarURL() string {
	return s.avatarURL
}

// Version resolves the currently published app version.
// For the play store and the mac app store an unparsable page is not an
// error, DefaultVersion is returned instead and no update will be detected.
// Failures of the itunes lookup API are returned as errors.
func (s *Store) Version(ctx context.Context) (string, error) {
	switch s.typ {
	case TypePlayStore:
		return s.playStoreVersion(ctx), nil
	case TypeAppStore:
		return s.appStoreVersion(ctx)
	case TypeMacStore:
		return s.macStoreVersion(ctx), nil
	default:
		return "", fmt.Errorf("unsupported store type: %d", uint8(s.typ))
	}
}

func (s *Store) playStoreVersion(ctx context.Context) string {
	body, err := s.get(ctx, s.url)
	if err != nil {
		s.logger.Warn(
			"retrieving play store page failed",
			logfields.Event("store_page_retrieval_failed"),
			zap.Error(err),
		)

		return DefaultVersion
	}

	if len(body) == 0 {
		s.logger.Warn(
			"play store returned an empty response",
			logfields.Event("store_page_empty"),
		)

		return DefaultVersion
	}

	match := playVersionRe.FindSubmatch(body)
	if match == nil {
		s.logger.Warn(
			"play store version not found in page",
			logfields.Event("store_version_not_found"),
		)

		return DefaultVersion
	}

	version := versionLabelRe.ReplaceAllString(string(match[1]), "")

	return strings.TrimSpace(version)
}

// appStoreVersion queries the itunes lookup API.
// A time parameter is appended to the URL to bypass response caching.
func (s *Store) appStoreVersion(ctx context.Context) (string, error) {
	url := s.url
	if strings.Contains(url, "?") {
		url += fmt.Sprintf("&time=%d", time.Now().Unix())
	} else {
		url += fmt.Sprintf("?time=%d", time.Now().Unix())
	}

	body, err := s.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("itunes lookup request failed: %w", err)
	}

	var lookup struct {
		Results []struct {
			Version string `json:"version"`
		} `json:"results"`
	}

	if err := json.Unmarshal(body, &lookup); err != nil {
		return "", fmt.Errorf("decoding itunes lookup response failed: %w", err)
	}

	if len(lookup.Results) == 0 {
		return "", fmt.Errorf("itunes lookup response contains no results")
	}

	return lookup.Results[0].Version, nil
}

func (s *Store) macStoreVersion(ctx context.Context) string {
	body, err := s.get(ctx, s.url)
	if err != nil {
		s.logger.Warn(
			"retrieving mac app store page failed",
			logfields.Event("store_page_retrieval_failed"),
			zap.Error(err),
		)

		return DefaultVersion
	}

	match := macVersionRe.FindSubmatch(body)
	if match == nil {
		s.logger.Warn(
			"mac app store version not found in page",
			logfields.Event("store_version_not_found"),
		)

		return DefaultVersion
	}

	return fmt.Sprintf("%s.%s.%s", match[1], match[2], match[3])
}

func (s *Store) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with StatusCode: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
