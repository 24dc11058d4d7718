package runner

import "fmt"

// Stage identifies a step of the update pipeline.
type Stage uint8

const (
	StageUndefined Stage = iota
	StagePrepare
	StageCheck
	StagePublish
)

var stageString = [...]string{
	StageUndefined: "undefined",
	StagePrepare:   "prepare",
	StageCheck:     "check",
	StagePublish:   "publish",
}

func (s Stage) String() string {
	if int(s) > len(stageString)-1 {
		return fmt.Sprintf("unsupported Stage value: %d", uint8(s))
	}

	return stageString[s]
}
