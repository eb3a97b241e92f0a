package pipeline

// Stage is the orchestrator's position in a run. Transitions are
// strictly sequential; StageFailed is terminal and reachable from
// any stage on a setup error. Item failures never change the stage.
type Stage int

const (
	StageInit Stage = iota
	StageIngesting
	StageExtracting
	StagePersisting
	StageMirroring
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageIngesting:
		return "ingesting"
	case StageExtracting:
		return "extracting"
	case StagePersisting:
		return "persisting"
	case StageMirroring:
		return "mirroring"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
