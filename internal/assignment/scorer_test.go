package assignment

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/executor"
)

func exec(id string, load, maxTasks int, skills ...string) *executor.Executor {
	e := &executor.Executor{ID: id, Name: id, Skills: skills, MaxConcurrentTasks: maxTasks}
	for i := range load {
		e.CurrentTaskIDs = append(e.CurrentTaskIDs, fmt.Sprintf("%s-task-%d", id, i))
	}
	return e
}

func newTestScorer() (*Scorer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewScorer(slog.New(slog.NewTextHandler(buf, nil))), buf
}

func TestSelect_SkillWeightDominatesCapacity(t *testing.T) {
	s, _ := newTestScorer()
	j := exec("jordan", 1, 3, "data", "visualization")
	k := exec("kim", 0, 3)

	sel, ok := s.Select([]string{"data", "visualization"}, nil, []*executor.Executor{k, j})
	require.True(t, ok)
	assert.Equal(t, "jordan", sel.Executor.ID)
	assert.InDelta(t, 1.0, sel.SkillScore, 1e-9)
	assert.InDelta(t, 2.0/3.0, sel.AvailabilityScore, 1e-9)
	assert.InDelta(t, 0.9, sel.TotalScore, 1e-9)
	assert.False(t, sel.Degraded())
	assert.NotEmpty(t, sel.Reason)
}

func TestSelect_AllAtCapacityFallsBackToLeastLoaded(t *testing.T) {
	s, logs := newTestScorer()
	pool := []*executor.Executor{
		exec("sarah", 3, 3, "backend"),
		exec("jordan", 2, 2, "data"),
		exec("alex", 4, 4, "planning"),
	}

	sel, ok := s.Select([]string{"data"}, nil, pool)
	require.True(t, ok)
	assert.Equal(t, "jordan", sel.Executor.ID)
	assert.Equal(t, FallbackOverCapacity, sel.Fallback)
	assert.Contains(t, sel.Reason, "over capacity")
	assert.Contains(t, logs.String(), "assignment exceeds executor capacity")
}

func TestSelect_OverCapacityTieKeepsPoolOrder(t *testing.T) {
	s, _ := newTestScorer()
	pool := []*executor.Executor{exec("a", 3, 3), exec("b", 3, 3), exec("c", 3, 3)}
	sel, ok := s.Select(nil, nil, pool)
	require.True(t, ok)
	assert.Equal(t, "a", sel.Executor.ID)
}

func TestSelect_NoSkillMatchScoresAvailabilityOnly(t *testing.T) {
	s, logs := newTestScorer()
	pool := []*executor.Executor{
		exec("sarah", 2, 3, "backend"),
		exec("alex", 0, 3, "planning"),
		exec("jordan", 3, 3, "design"), // full, has the skill
	}
	sel, ok := s.Select([]string{"design"}, nil, pool)
	require.True(t, ok)
	assert.Equal(t, "alex", sel.Executor.ID)
	assert.Equal(t, FallbackNoSkillMatch, sel.Fallback)
	assert.InDelta(t, 1.0, sel.TotalScore, 1e-9)
	assert.Contains(t, logs.String(), "assignment ignores skill requirements")
}

func TestSelect_NoRequiredSkillsUsesDefaultSkillScore(t *testing.T) {
	s, _ := newTestScorer()
	sel, ok := s.Select(nil, nil, []*executor.Executor{exec("sarah", 1, 3), exec("alex", 0, 3)})
	require.True(t, ok)
	assert.Equal(t, "alex", sel.Executor.ID)
	assert.InDelta(t, NoSkillsRequiredScore, sel.SkillScore, 1e-9)
	assert.InDelta(t, 0.7*0.5+0.3*1, sel.TotalScore, 1e-9)
}

func TestSelect_TieKeepsPoolOrder(t *testing.T) {
	s, _ := newTestScorer()
	pool := []*executor.Executor{exec("b", 1, 3, "x"), exec("a", 1, 3, "x")}
	sel, ok := s.Select([]string{"x"}, nil, pool)
	require.True(t, ok)
	assert.Equal(t, "b", sel.Executor.ID)
}

func TestSelect_Exclusion(t *testing.T) {
	s, _ := newTestScorer()
	pool := []*executor.Executor{
		exec("sarah", 0, 3, "data"),
		exec("jordan", 0, 3, "data"),
		exec("alex", 3, 3),
	}

	sel, ok := s.Select([]string{"data"}, []string{"sarah", "jordan"}, pool)
	require.True(t, ok)
	assert.Equal(t, "alex", sel.Executor.ID)
	assert.Equal(t, FallbackOverCapacity, sel.Fallback)

	_, ok = s.Select([]string{"data"}, []string{"sarah", "jordan", "alex"}, pool)
	assert.False(t, ok)

	_, ok = s.Select(nil, nil, nil)
	assert.False(t, ok)
}

func TestSelect_ExcludedNeverChosen(t *testing.T) {
	s, _ := newTestScorer()
	pool := []*executor.Executor{
		exec("a", 0, 3, "x", "y"),
		exec("b", 1, 3, "x"),
		exec("c", 2, 3),
		exec("d", 3, 3, "y"),
	}
	ids := []string{"a", "b", "c", "d"}
	for mask := 0; mask < 1<<len(ids)-1; mask++ {
		var exclude []string
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				exclude = append(exclude, id)
			}
		}
		sel, ok := s.Select([]string{"x", "y"}, exclude, pool)
		require.True(t, ok, "exclude=%v", exclude)
		assert.NotContains(t, exclude, sel.Executor.ID)
	}
}

func TestTotalScore_MonotonicInSkillOverlap(t *testing.T) {
	required := []string{"a", "b", "c", "d"}
	for load := 0; load < 3; load++ {
		prev := -1.0
		for overlap := 0; overlap <= len(required); overlap++ {
			e := exec("e", load, 3, required[:overlap]...)
			score := TotalScore(SkillScore(required, e), AvailabilityScore(e))
			assert.GreaterOrEqual(t, score, prev, "load=%d overlap=%d", load, overlap)
			prev = score
		}
	}

	// A better-matched executor with equal capacity is never ranked below a
	// less-matched one.
	s, _ := newTestScorer()
	for better := 1; better <= len(required); better++ {
		for worse := 0; worse < better; worse++ {
			pool := []*executor.Executor{
				exec("worse", 1, 3, required[:worse]...),
				exec("better", 1, 3, required[:better]...),
			}
			sel, ok := s.Select(required, nil, pool)
			require.True(t, ok)
			assert.Equal(t, "better", sel.Executor.ID, "better=%d worse=%d", better, worse)
		}
	}
}
