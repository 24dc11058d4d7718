// Package cfg loads the appwatch configuration file.
package cfg

import (
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefCheckInterval         = "4h"
	DefGitRemote             = "origin"
	DefGitAuthorName         = "appwatch"
	DefGitAuthorEmail        = "appwatch@users.noreply.github.com"
	DefStateFile             = "current_ver.json"
	DefCommitMsgFile         = "commit.txt"
	DefReleaseFilterQuery    = `.action == "published"`
	DefGithubWebhookEndpoint = "/webhooks/github"
	DefMetricsEndpoint       = "/metrics"
	DefLogFormat             = "logfmt"
	DefLogLevel              = "info"
)

type Config struct {
	HTTPListenAddr        string `toml:"http_server_listen_addr"`
	HTTPSListenAddr       string `toml:"https_server_listen_addr"`
	HTTPSCertFile         string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile          string `toml:"https_ssl_key_file"`
	GithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	GithubWebhookSecret   string `toml:"github_webhook_secret"`
	MetricsEndpoint       string `toml:"metrics_endpoint"`

	NotifyWebhookURL string `toml:"notify_webhook_url"`
	GitPushToken     string `toml:"git_push_token"`

	CheckInterval      string `toml:"check_interval"`
	ReleaseFilterQuery string `toml:"release_filter_query"`

	RepositoryDir  string `toml:"repository_dir"`
	GitRemote      string `toml:"git_remote"`
	GitAuthorName  string `toml:"git_author_name"`
	GitAuthorEmail string `toml:"git_author_email"`

	// StateFile and CommitMsgFile are paths relative to RepositoryDir.
	StateFile     string `toml:"state_file"`
	CommitMsgFile string `toml:"commit_message_file"`

	LogFormat  string `toml:"log_format"`
	LogTimeKey string `toml:"log_time_key"`
	LogLevel   string `toml:"log_level"`

	Stores []*Store `toml:"store"`
}

// Store describes one app store page that is checked for new versions.
type Store struct {
	Type      string `toml:"type"`
	URL       string `toml:"url"`
	AvatarURL string `toml:"avatar_url"`
}

func Load(reader io.Reader) (*Config, error) {
	result := Config{
		GithubWebhookEndpoint: DefGithubWebhookEndpoint,
		MetricsEndpoint:       DefMetricsEndpoint,
		CheckInterval:         DefCheckInterval,
		ReleaseFilterQuery:    DefReleaseFilterQuery,
		GitRemote:             DefGitRemote,
		GitAuthorName:         DefGitAuthorName,
		GitAuthorEmail:        DefGitAuthorEmail,
		StateFile:             DefStateFile,
		CommitMsgFile:         DefCommitMsgFile,
		LogFormat:             DefLogFormat,
		LogLevel:              DefLogLevel,
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if _, err := time.ParseDuration(result.CheckInterval); err != nil {
		return nil, fmt.Errorf("check_interval: %w", err)
	}

	for i, store := range result.Stores {
		if store.Type == "" {
			return nil, fmt.Errorf("store %d: missing field: 'type'", i)
		}

		if store.URL == "" {
			return nil, fmt.Errorf("store %d: missing field: 'url'", i)
		}
	}

	return &result, nil
}

// Interval returns the parsed check_interval value.
// The value is validated in Load(), it can not fail afterwards.
func (c *Config) Interval() time.Duration {
	interval, _ := time.ParseDuration(c.CheckInterval)
	return interval
}

func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}
