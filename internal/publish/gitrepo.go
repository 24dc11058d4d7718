// Package publish stages, commits and pushes changes that an update check
// left in the worktree.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

const loggerName = "publisher"

// ErrNotPrepared is returned by Publish() when Prepare() was not called
// successfully before.
var ErrNotPrepared = errors.New("repository is not prepared, Prepare() must be called first")

// GitRepository publishes worktree changes of a local git repository.
// It is not safe for concurrent use.
type GitRepository struct {
	dir         string
	remote      string
	pushToken   string
	authorName  string
	authorEmail string
	logger      *zap.Logger

	repo     *git.Repository
	worktree *git.Worktree
}

type option func(*GitRepository)

func WithRemote(remote string) option {
	return func(g *GitRepository) {
		g.remote = remote
	}
}

// WithPushToken sets the credential that is used for pushing via http basic
// auth. When unset, pushes are attempted without authentication.
func WithPushToken(token string) option {
	return func(g *GitRepository) {
		g.pushToken = token
	}
}

func WithAuthor(name, email string) option {
	return func(g *GitRepository) {
		g.authorName = name
		g.authorEmail = email
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(g *GitRepository) {
		g.logger = logger
	}
}

func NewGitRepository(dir string, opts ...option) *GitRepository {
	g := GitRepository{
		dir:         dir,
		remote:      git.DefaultRemoteName,
		authorName:  "appwatch",
		authorEmail: "appwatch@users.noreply.github.com",
	}

	for _, opt := range opts {
		opt(&g)
	}

	if g.logger == nil {
		g.logger = zap.L().Named(loggerName)
	}

	return &g
}

// Prepare opens the repository and its worktree.
func (g *GitRepository) Prepare(_ context.Context) error {
	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return fmt.Errorf("opening git repository %q failed: %w", g.dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("retrieving worktree of %q failed: %w", g.dir, err)
	}

	g.repo = repo
	g.worktree = worktree

	return nil
}

// Publish stages all worktree changes, commits them with message and pushes
// the current branch to the remote.
// A clean worktree is not an error, the returned outcome is OutcomeNoChange
// and no commit is created. The push is done in both cases, a remote that is
// already up-to-date is treated as success.
func (g *GitRepository) Publish(ctx context.Context, message string) (*Outcome, error) {
	if g.worktree == nil {
		return nil, ErrNotPrepared
	}

	err := g.worktree.AddWithOptions(&git.AddOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("staging changes failed: %w", err)
	}

	status, err := g.worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("retrieving worktree status failed: %w", err)
	}

	outcome := Outcome{Kind: OutcomeNoChange}

	if status.IsClean() {
		g.logger.Info(
			"nothing to update, worktree is clean",
			logfields.Event("publish_no_changes"),
		)
	} else {
		hash, err := g.worktree.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  g.authorName,
				Email: g.authorEmail,
				When:  time.Now(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("creating commit failed: %w", err)
		}

		outcome = Outcome{Kind: OutcomeCreated, Hash: hash.String()}

		g.logger.Info(
			"commit created",
			logfields.Event("publish_commit_created"),
			logfields.Commit(outcome.Hash),
		)
	}

	if err := g.push(ctx); err != nil {
		return nil, fmt.Errorf("pushing to remote %q failed: %w", g.remote, err)
	}

	return &outcome, nil
}

func (g *GitRepository) push(ctx context.Context) error {
	head, err := g.repo.Head()
	if err != nil {
		return fmt.Errorf("retrieving HEAD failed: %w", err)
	}

	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", head.Name(), head.Name()))

	err = g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: g.remote,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       g.auth(),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		g.logger.Debug(
			"remote is already up-to-date",
			logfields.Event("publish_remote_up_to_date"),
			logfields.Branch(head.Name().Short()),
		)

		return nil
	}

	if err != nil {
		return err
	}

	g.logger.Info(
		"pushed to remote",
		logfields.Event("publish_pushed"),
		logfields.Branch(head.Name().Short()),
	)

	return nil
}

func (g *GitRepository) auth() transport.AuthMethod {
	if g.pushToken == "" {
		return nil
	}

	// github accepts any non-empty username when a token is used
	return &githttp.BasicAuth{
		Username: "git",
		Password: g.pushToken,
	}
}
