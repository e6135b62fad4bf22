package syncer

import "fmt"

// Stage is the progress of one sync attempt.
type Stage uint8

const (
	StageStart Stage = iota
	StageParsed
	StageDiffed
	StageUploading
	StageFinalized
	StageRolledBack
)

var stageNames = [...]string{
	StageStart:      "START",
	StageParsed:     "PARSED",
	StageDiffed:     "DIFFED",
	StageUploading:  "UPLOADING",
	StageFinalized:  "FINALIZED",
	StageRolledBack: "ROLLED_BACK",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// Outcome is how a successful sync ended.
type Outcome uint8

const (
	// OutcomeSynced means a new version was promoted to baseline.
	OutcomeSynced Outcome = iota
	// OutcomeUnchanged means content matched the baseline, which was heartbeated.
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}
