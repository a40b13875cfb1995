package landseg

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/chunk"
)

// Stage is a step of a pipeline run.
type Stage uint8

const (
	// StageEstimate fills statistics by hierarchical fallback.
	StageEstimate Stage = iota
	// StageSeed records the seed table of the run.
	StageSeed
	// StageChunk partitions seed and controls by district.
	StageChunk
	// StageRake fits every chunk to its controls.
	StageRake
	// StageResolve joins segment factors onto the population.
	StageResolve

	numStages
)

var stageNames = [numStages]string{"estimate", "seed", "chunk", "rake", "resolve"}

func (s Stage) String() string {
	if s < numStages {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// ParseStage parses a stage name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("landseg: unknown stage %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Requires returns the stages that must complete before s.
func (s Stage) Requires() []Stage {
	switch s {
	case StageChunk:
		return []Stage{StageSeed}
	case StageRake:
		return []Stage{StageChunk}
	case StageResolve:
		return []Stage{StageRake}
	}
	return nil
}

// StageSet is a set of stages.
type StageSet uint8

// Has reports whether s is in the set.
func (set StageSet) Has(s Stage) bool { return set&(1<<s) != 0 }

// With returns the set with s added.
func (set StageSet) With(s Stage) StageSet { return set | 1<<s }

// Stages returns the members in pipeline order.
func (set StageSet) Stages() []Stage {
	var out []Stage
	for s := range numStages {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set StageSet) String() string {
	names := make([]string, 0, numStages)
	for _, s := range set.Stages() {
		names = append(names, s.String())
	}
	return strings.Join(names, ",")
}

// MarshalText encodes the set as a comma-separated list of stage names.
func (set StageSet) MarshalText() ([]byte, error) { return []byte(set.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (set *StageSet) UnmarshalText(b []byte) error {
	var out StageSet
	for name := range strings.SplitSeq(string(b), ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		s, err := ParseStage(name)
		if err != nil {
			return err
		}
		out = out.With(s)
	}
	*set = out
	return nil
}

// RunState is the serialisable progress of a pipeline run. It is a value:
// stage methods return an updated copy instead of mutating their input.
type RunState struct {
	RunID      string          `json:"run_id"`
	Completed  StageSet        `json:"completed"`
	ChunksDone []chunk.ID      `json:"chunks_done,omitempty"`
	Findings   []audit.Finding `json:"findings,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewRunState starts a run.
func NewRunState(runID string) RunState {
	return RunState{RunID: runID, UpdatedAt: time.Now().UTC()}
}

// Require fails with a *StageNotCompleteError unless every prerequisite
// of stage has completed.
func (s RunState) Require(stage Stage) error {
	var missing []Stage
	for _, dep := range stage.Requires() {
		if !s.Completed.Has(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &StageNotCompleteError{Stage: stage, Missing: missing}
	}
	return nil
}

// Done reports whether stage has completed.
func (s RunState) Done(stage Stage) bool { return s.Completed.Has(stage) }

// Complete returns the state with stage marked as completed.
func (s RunState) Complete(stage Stage) RunState {
	s.Completed = s.Completed.With(stage)
	s.UpdatedAt = time.Now().UTC()
	return s
}

// ChunkDone reports whether chunk id has been raked and saved.
func (s RunState) ChunkDone(id chunk.ID) bool {
	_, ok := slices.BinarySearch(s.ChunksDone, id)
	return ok
}

// WithChunks returns the state with ids recorded as done.
func (s RunState) WithChunks(ids ...chunk.ID) RunState {
	done := slices.Clone(s.ChunksDone)
	for _, id := range ids {
		if i, ok := slices.BinarySearch(done, id); !ok {
			done = slices.Insert(done, i, id)
		}
	}
	s.ChunksDone = done
	s.UpdatedAt = time.Now().UTC()
	return s
}

// WithFindings returns the state with findings appended.
func (s RunState) WithFindings(findings ...audit.Finding) RunState {
	if len(findings) == 0 {
		return s
	}
	s.Findings = append(slices.Clone(s.Findings), findings...)
	return s
}
