package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
	"github.com/atlasacademy/appwatch/internal/metrics"
)

// DefaultCommitMessage is written to the commit-message file at the start of
// every check. It is only used for a commit when the worktree changed without
// an update being detected, e.g. after a manual edit of the state file.
const DefaultCommitMessage = "update app version"

const checkerLoggerName = "update-checker"

// Source resolves the currently published app version in one store.
type Source interface {
	Name() string
	AvatarURL() string
	Version(ctx context.Context) (string, error)
}

// Notifier announces a detected update.
type Notifier interface {
	Notify(ctx context.Context, message, username, avatarURL string) error
}

// Checker compares the published store versions against the recorded state.
// When an update is detected it announces it via the notifier, rewrites the
// commit-message file and records the new version in the state file.
type Checker struct {
	sources   []Source
	stateFile string
	msgFile   string
	notifier  Notifier
	logger    *zap.Logger
}

type CheckerOption func(*Checker)

// WithNotifier sets the notifier that announces updates.
// Without a notifier updates are only logged and recorded.
func WithNotifier(notifier Notifier) CheckerOption {
	return func(c *Checker) {
		c.notifier = notifier
	}
}

func WithCheckerLogger(logger *zap.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

func NewChecker(sources []Source, stateFile, msgFile string, opts ...CheckerOption) *Checker {
	c := Checker{
		sources:   sources,
		stateFile: stateFile,
		msgFile:   msgFile,
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.logger == nil {
		c.logger = zap.L().Named(checkerLoggerName)
	}

	return &c
}

// Check resolves the version of every source and processes detected updates.
// The first failing source or notification aborts the check.
func (c *Checker) Check(ctx context.Context) error {
	if err := c.writeCommitMessage(DefaultCommitMessage); err != nil {
		return err
	}

	state, err := c.readState()
	if err != nil {
		return err
	}

	for _, source := range c.sources {
		logger := c.logger.With(logfields.Store(source.Name()))

		logger.Debug(
			"retrieving store version",
			logfields.Event("store_version_retrieving"),
		)

		newVer, err := source.Version(ctx)
		if err != nil {
			return fmt.Errorf("checking %s failed: %w", source.Name(), err)
		}

		currentVer := state[source.Name()]
		if currentVer == "" {
			currentVer = DefaultVersion
		}

		if !IsNewer(newVer, currentVer) {
			state[source.Name()] = currentVer

			logger.Debug(
				"store version unchanged",
				logfields.Event("store_version_unchanged"),
				zap.String("version", currentVer),
			)

			continue
		}

		message := fmt.Sprintf("%s update: v%s", source.Name(), newVer)

		if err := c.writeCommitMessage(message); err != nil {
			return err
		}

		if c.notifier != nil {
			err := c.notifier.Notify(ctx, message, source.Name(), source.AvatarURL())
			if err != nil {
				return fmt.Errorf("announcing %s update failed: %w", source.Name(), err)
			}
		}

		metrics.UpdatesDetectedInc(source.Name())
		state[source.Name()] = newVer

		logger.Info(
			"store update detected",
			logfields.Event("store_update_detected"),
			zap.String("old_version", currentVer),
			zap.String("new_version", newVer),
		)
	}

	return c.writeState(state)
}

func (c *Checker) writeCommitMessage(message string) error {
	if err := os.WriteFile(c.msgFile, []byte(message), 0o644); err != nil {
		return fmt.Errorf("writing commit-message file failed: %w", err)
	}

	return nil
}

func (c *Checker) readState() (map[string]string, error) {
	data, err := os.ReadFile(c.stateFile)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading state file failed: %w", err)
	}

	var state map[string]string
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state file failed: %w", err)
	}

	return state, nil
}

func (c *Checker) writeState(state map[string]string) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state failed: %w", err)
	}

	if err := os.WriteFile(c.stateFile, data, 0o644); err != nil {
		return fmt.Errorf("writing state file failed: %w", err)
	}

	return nil
}
