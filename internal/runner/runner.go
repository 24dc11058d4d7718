// Package runner orchestrates the update pipeline.
//
// Trigger events are consumed from a channel and processed strictly
// sequentially: Prepare -> Check -> Publish. Overlapping triggers therefore
// queue up instead of running concurrently, there is no cross-process
// mutual exclusion.
package runner

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
	"github.com/atlasacademy/appwatch/internal/metrics"
	"github.com/atlasacademy/appwatch/internal/publish"
	"github.com/atlasacademy/appwatch/internal/trigger"
)

const DefEventChannelBufferSize = 16

const loggerName = "runner"

// defaultCommitMessage is used when the checker left no commit-message file
// behind.
const defaultCommitMessage = "update app version"

// Checker inspects external state for app updates.
// It may modify files in the worktree and may rewrite the commit-message
// file, its internals are opaque to the runner.
type Checker interface {
	Check(ctx context.Context) error
}

// Publisher prepares the worktree and publishes the changes a check left
// behind.
type Publisher interface {
	Prepare(ctx context.Context) error
	Publish(ctx context.Context, message string) (*publish.Outcome, error)
}

// Runner executes the update pipeline for every received trigger event.
type Runner struct {
	ch        chan *trigger.Event
	checker   Checker
	publisher Publisher
	msgFile   string
	logger    *zap.Logger
	done      chan struct{}

	runDeferFn func()
}

type option func(*Runner)

// WithRunDeferFunc sets a function that is deferred in the event-loop
// go-routine. It can be used to set a panic handler.
func WithRunDeferFunc(fn func()) option {
	return func(r *Runner) {
		r.runDeferFn = fn
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New returns a runner that reads the commit message from msgFile after each
// successful check.
func New(checker Checker, publisher Publisher, msgFile string, opts ...option) *Runner {
	r := Runner{
		ch:        make(chan *trigger.Event, DefEventChannelBufferSize),
		checker:   checker,
		publisher: publisher,
		msgFile:   msgFile,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&r)
	}

	if r.logger == nil {
		r.logger = zap.L().Named(loggerName)
	}

	return &r
}

// C returns the trigger event channel.
// Events sent to this channel are processed. The channel is closed when
// Stop() is called.
func (r *Runner) C() chan<- *trigger.Event {
	return r.ch
}

// Start processes trigger events until the event channel is closed.
// It blocks, run it in a go-routine.
func (r *Runner) Start() {
	defer close(r.done)

	if r.runDeferFn != nil {
		defer r.runDeferFn()
	}

	ctx := context.Background()
	r.logger.Info("ready to process trigger events", logfields.Event("runner_started"))

	for ev := range r.ch {
		if err := r.RunOnce(ctx, ev); err != nil {
			r.logger.Error(
				"update run failed",
				append(ev.LogFields(), logfields.Event("run_failed"), zap.Error(err))...,
			)
		}
	}

	r.logger.Info(
		"runner terminated, event channel was closed",
		logfields.Event("runner_terminated"),
	)
}

// Stop closes the event channel and waits until the Start() loop terminated.
// Already queued events are still processed before Start() returns.
func (r *Runner) Stop() {
	close(r.ch)
	<-r.done
}

// RunOnce executes a single update run for the given trigger event.
// A run that publishes nothing is a success. The returned error wraps the
// stage that failed as a *StageError.
func (r *Runner) RunOnce(ctx context.Context, ev *trigger.Event) error {
	logger := r.logger.With(ev.LogFields()...)

	logger.Info("update run started", logfields.Event("run_started"))

	if err := r.publisher.Prepare(ctx); err != nil {
		metrics.RunsInc(ev.Kind.String(), metrics.ResultLabelFailureVal)
		return newStageError(StagePrepare, err)
	}

	if err := r.checker.Check(ctx); err != nil {
		metrics.RunsInc(ev.Kind.String(), metrics.ResultLabelFailureVal)
		return newStageError(StageCheck, err)
	}

	outcome, err := r.publisher.Publish(ctx, r.commitMessage(logger))
	if err != nil {
		metrics.RunsInc(ev.Kind.String(), metrics.ResultLabelFailureVal)
		return newStageError(StagePublish, err)
	}

	switch outcome.Kind {
	case publish.OutcomeNoChange:
		metrics.RunsInc(ev.Kind.String(), metrics.ResultLabelNoChangeVal)

		logger.Info(
			"nothing to update",
			logfields.Event("run_finished_no_changes"),
		)

	case publish.OutcomeCreated:
		metrics.RunsInc(ev.Kind.String(), metrics.ResultLabelSuccessVal)
		metrics.CommitsInc()

		logger.Info(
			"update published",
			logfields.Event("run_finished_update_published"),
			logfields.Commit(outcome.Hash),
		)

	default:
		logger.Warn(
			"publisher returned an undefined outcome",
			logfields.Event("run_undefined_publish_outcome"),
			zap.String("outcome", outcome.String()),
		)
	}

	return nil
}

// commitMessage reads the message the checker left behind.
// The file content is used verbatim. A missing file is tolerated, the
// default message is used instead.
func (r *Runner) commitMessage(logger *zap.Logger) string {
	data, err := os.ReadFile(r.msgFile)
	if err != nil {
		logger.Warn(
			"reading commit-message file failed, using default message",
			logfields.Event("commit_message_file_unreadable"),
			zap.String("commit_message_file", r.msgFile),
			zap.Error(err),
		)

		return defaultCommitMessage
	}

	return string(data)
}
