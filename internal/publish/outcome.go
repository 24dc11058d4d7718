package publish

import "fmt"

// OutcomeKind represents the result of a publish attempt.
type OutcomeKind uint8

const (
	OutcomeUndefined OutcomeKind = iota
	// OutcomeCreated means a commit was created and pushed.
	OutcomeCreated
	// OutcomeNoChange means the worktree was clean, nothing was committed.
	// It is a normal terminal state, not an error.
	OutcomeNoChange
)

var outcomeKindString = [...]string{
	OutcomeUndefined: "undefined",
	OutcomeCreated:   "created",
	OutcomeNoChange:  "no-change",
}

func (k OutcomeKind) String() string {
	if int(k) > len(outcomeKindString)-1 {
		return fmt.Sprintf("unsupported OutcomeKind value: %d", uint8(k))
	}

	return outcomeKindString[k]
}

// Outcome describes what a Publish() call did.
// Hash is only set when Kind is OutcomeCreated.
type Outcome struct {
	Kind OutcomeKind
	Hash string
}

func (o *Outcome) String() string {
	if o.Kind == OutcomeCreated {
		return fmt.Sprintf("created commit %s", o.Hash)
	}

	return o.Kind.String()
}
