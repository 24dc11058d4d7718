package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	name      string
	avatarURL string
	version   string
	err       error
}

func (f *fakeSource) Name() string      { return f.name }
func (f *fakeSource) AvatarURL() string { return f.avatarURL }

func (f *fakeSource) Version(context.Context) (string, error) {
	return f.version, f.err
}

type notification struct {
	message   string
	username  string
	avatarURL string
}

type fakeNotifier struct {
	err   error
	calls []notification
}

func (f *fakeNotifier) Notify(_ context.Context, message, username, avatarURL string) error {
	f.calls = append(f.calls, notification{
		message:   message,
		username:  username,
		avatarURL: avatarURL,
	})

	return f.err
}

type checkerTestEnv struct {
	checker   *Checker
	notifier  *fakeNotifier
	stateFile string
	msgFile   string
}

func newCheckerTestEnv(t *testing.T, sources ...Source) *checkerTestEnv {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	dir := t.TempDir()
	env := checkerTestEnv{
		notifier:  &fakeNotifier{},
		stateFile: filepath.Join(dir, "current_ver.json"),
		msgFile:   filepath.Join(dir, "commit.txt"),
	}

	env.checker = NewChecker(
		sources,
		env.stateFile,
		env.msgFile,
		WithNotifier(env.notifier),
	)

	return &env
}

func (e *checkerTestEnv) commitMessage(t *testing.T) string {
	t.Helper()

	data, err := os.ReadFile(e.msgFile)
	require.NoError(t, err)

	return string(data)
}

func (e *checkerTestEnv) state(t *testing.T) map[string]string {
	t.Helper()

	data, err := os.ReadFile(e.stateFile)
	require.NoError(t, err)

	var state map[string]string
	require.NoError(t, json.Unmarshal(data, &state))

	return state
}

func (e *checkerTestEnv) writeState(t *testing.T, state map[string]string) {
	t.Helper()

	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.stateFile, data, 0o644))
}

func TestCheckDetectsUpdate(t *testing.T) {
	source := &fakeSource{
		name:      "Test Store",
		avatarURL: "https://i.example.com/test.png",
		version:   "2.3.1",
	}
	env := newCheckerTestEnv(t, source)
	env.writeState(t, map[string]string{"Test Store": "2.3.0"})

	require.NoError(t, env.checker.Check(context.Background()))

	assert.Equal(t, "Test Store update: v2.3.1", env.commitMessage(t))
	assert.Equal(t, map[string]string{"Test Store": "2.3.1"}, env.state(t))

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, "Test Store update: v2.3.1", env.notifier.calls[0].message)
	assert.Equal(t, "Test Store", env.notifier.calls[0].username)
	assert.Equal(t, "https://i.example.com/test.png", env.notifier.calls[0].avatarURL)
}

func TestCheckFirstRunUsesDefaultVersion(t *testing.T) {
	source := &fakeSource{name: "Test Store", version: "2.3.1"}
	env := newCheckerTestEnv(t, source)

	require.NoError(t, env.checker.Check(context.Background()))

	// 2.3.1 is newer than the implicit default 1.0.0
	assert.Equal(t, "Test Store update: v2.3.1", env.commitMessage(t))
	assert.Equal(t, map[string]string{"Test Store": "2.3.1"}, env.state(t))
	assert.Len(t, env.notifier.calls, 1)
}

func TestCheckNoUpdate(t *testing.T) {
	source := &fakeSource{name: "Test Store", version: "2.3.1"}
	env := newCheckerTestEnv(t, source)
	env.writeState(t, map[string]string{"Test Store": "2.3.1"})

	require.NoError(t, env.checker.Check(context.Background()))

	assert.Equal(t, DefaultCommitMessage, env.commitMessage(t))
	assert.Equal(t, map[string]string{"Test Store": "2.3.1"}, env.state(t))
	assert.Empty(t, env.notifier.calls)
}

func TestCheckIsIdempotent(t *testing.T) {
	source := &fakeSource{name: "Test Store", version: "2.3.1"}
	env := newCheckerTestEnv(t, source)

	require.NoError(t, env.checker.Check(context.Background()))
	require.Len(t, env.notifier.calls, 1)

	require.NoError(t, env.checker.Check(context.Background()))

	assert.Len(t, env.notifier.calls, 1, "second run announced the same update again")
	assert.Equal(t, DefaultCommitMessage, env.commitMessage(t))
}

func TestCheckSourceError(t *testing.T) {
	failing := &fakeSource{name: "Test Store", err: errors.New("store unreachable")}
	env := newCheckerTestEnv(t, failing)

	err := env.checker.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Test Store")

	_, statErr := os.Stat(env.stateFile)
	assert.True(t, os.IsNotExist(statErr), "state file was written despite the failed check")
}

func TestCheckNotifierError(t *testing.T) {
	source := &fakeSource{name: "Test Store", version: "2.3.1"}
	env := newCheckerTestEnv(t, source)
	env.notifier.err = errors.New("webhook rejected")

	require.Error(t, env.checker.Check(context.Background()))
}

func TestCheckMultipleSources(t *testing.T) {
	play := &fakeSource{name: "Google Play Store", version: "2.3.1"}
	ios := &fakeSource{name: "iOS App Store", version: "2.4.0"}
	env := newCheckerTestEnv(t, play, ios)
	env.writeState(t, map[string]string{
		"Google Play Store": "2.3.1",
		"iOS App Store":     "2.3.1",
	})

	require.NoError(t, env.checker.Check(context.Background()))

	assert.Equal(t, "iOS App Store update: v2.4.0", env.commitMessage(t))
	assert.Equal(t, map[string]string{
		"Google Play Store": "2.3.1",
		"iOS App Store":     "2.4.0",
	}, env.state(t))
	require.Len(t, env.notifier.calls, 1)
}
