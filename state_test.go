package landseg

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/landseg/audit"
	"github.com/hupe1980/landseg/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_Require(t *testing.T) {
	st := NewRunState("r")
	assert.NoError(t, st.Require(StageEstimate))
	assert.NoError(t, st.Require(StageSeed))

	err := st.Require(StageRake)
	var snc *StageNotCompleteError
	require.ErrorAs(t, err, &snc)
	assert.Equal(t, StageRake, snc.Stage)
	assert.Equal(t, []Stage{StageChunk}, snc.Missing)
	assert.EqualError(t, err, "landseg: stage rake requires chunk")

	st = st.Complete(StageSeed).Complete(StageChunk)
	assert.NoError(t, st.Require(StageRake))
	assert.True(t, st.Done(StageChunk))
	assert.False(t, st.Done(StageRake))
}

func TestRunState_WithChunks(t *testing.T) {
	st := NewRunState("r").WithChunks(7, 3)
	st2 := st.WithChunks(5, 3, 9)

	assert.Equal(t, []chunk.ID{3, 7}, st.ChunksDone, "input state is not modified")
	assert.Equal(t, []chunk.ID{3, 5, 7, 9}, st2.ChunksDone)
	assert.True(t, st2.ChunkDone(5))
	assert.False(t, st2.ChunkDone(4))
}

func TestStageSet_Text(t *testing.T) {
	set := StageSet(0).With(StageRake).With(StageSeed)
	assert.Equal(t, []Stage{StageSeed, StageRake}, set.Stages())
	assert.Equal(t, "seed,rake", set.String())

	var got StageSet
	require.NoError(t, got.UnmarshalText([]byte(" seed , rake,")))
	assert.Equal(t, set, got)

	assert.Error(t, got.UnmarshalText([]byte("seed,bake")))

	_, err := ParseStage("chunk")
	assert.NoError(t, err)
	assert.Equal(t, "stage(9)", Stage(9).String())
}

func TestRunState_JSON(t *testing.T) {
	st := NewRunState("run-7").
		Complete(StageSeed).
		Complete(StageChunk).
		WithChunks(2, 1).
		WithFindings(audit.NewFinding(audit.NamePopulationDrift, audit.SeverityWarning, "tenure", 100, 90))

	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"completed":"seed,chunk"`)

	var got RunState
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, st.RunID, got.RunID)
	assert.Equal(t, st.Completed, got.Completed)
	assert.Equal(t, []chunk.ID{1, 2}, got.ChunksDone)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, audit.SeverityWarning, got.Findings[0].Severity)
	assert.True(t, st.UpdatedAt.Equal(got.UpdatedAt))
}
