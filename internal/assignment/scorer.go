package assignment

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/kazz187/dispatch/internal/executor"
)

const (
	SkillWeight        = 0.7
	AvailabilityWeight = 0.3
	// NoSkillsRequiredScore is the skill score used when a task lists no skills.
	NoSkillsRequiredScore = 0.5
)

type Fallback string

const (
	FallbackNone Fallback = ""
	// FallbackOverCapacity means nobody had room and the least-loaded
	// executor was chosen anyway, exceeding its capacity.
	FallbackOverCapacity Fallback = "over_capacity"
	// FallbackNoSkillMatch means nobody with room had any required skill and
	// the choice was made on availability alone.
	FallbackNoSkillMatch Fallback = "no_skill_match"
)

// Selection is the scorer's pick and how it was reached.
type Selection struct {
	Executor          *executor.Executor
	SkillScore        float64
	AvailabilityScore float64
	TotalScore        float64
	Fallback          Fallback
	Reason            string
}

func (s *Selection) Degraded() bool {
	return s.Fallback != FallbackNone
}

type Scorer struct {
	logger *slog.Logger
}

func NewScorer(logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{logger: logger}
}

// SkillScore is the fraction of required skills e has.
func SkillScore(required []string, e *executor.Executor) float64 {
	if len(required) == 0 {
		return NoSkillsRequiredScore
	}
	matched := 0
	for _, s := range required {
		if e.HasSkill(s) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// AvailabilityScore is the unused fraction of e's capacity, floored at zero.
func AvailabilityScore(e *executor.Executor) float64 {
	if e.MaxConcurrentTasks <= 0 {
		return 0
	}
	return max(0, 1-float64(e.Load())/float64(e.MaxConcurrentTasks))
}

func TotalScore(skill, availability float64) float64 {
	return SkillWeight*skill + AvailabilityWeight*availability
}

// Select picks an executor from pool for a task needing required, never
// choosing ids in exclude. Ties keep the earliest candidate in pool order.
// It returns false only when every candidate is excluded.
func (s *Scorer) Select(required, exclude []string, pool []*executor.Executor) (*Selection, bool) {
	var candidates []*executor.Executor
	for _, e := range pool {
		if !slices.Contains(exclude, e.ID) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	var available []*executor.Executor
	for _, e := range candidates {
		if e.HasCapacity() {
			available = append(available, e)
		}
	}
	if len(available) == 0 {
		return s.leastLoaded(required, candidates), true
	}

	if len(required) > 0 && !slices.ContainsFunc(available, func(e *executor.Executor) bool {
		return SkillScore(required, e) > 0
	}) {
		return s.byAvailability(required, available), true
	}

	var best *Selection
	for _, e := range available {
		skill := SkillScore(required, e)
		avail := AvailabilityScore(e)
		total := TotalScore(skill, avail)
		if best == nil || total > best.TotalScore {
			best = &Selection{Executor: e, SkillScore: skill, AvailabilityScore: avail, TotalScore: total}
		}
	}
	best.Reason = fmt.Sprintf("%s matched %.0f%% of required skills with %d/%d tasks (score %.2f)",
		best.Executor.Name, best.SkillScore*100, best.Executor.Load(), best.Executor.MaxConcurrentTasks, best.TotalScore)
	return best, true
}

func (s *Scorer) leastLoaded(required []string, candidates []*executor.Executor) *Selection {
	pick := candidates[0]
	for _, e := range candidates[1:] {
		if e.Load() < pick.Load() {
			pick = e
		}
	}
	skill := SkillScore(required, pick)
	avail := AvailabilityScore(pick)
	sel := &Selection{
		Executor:          pick,
		SkillScore:        skill,
		AvailabilityScore: avail,
		TotalScore:        TotalScore(skill, avail),
		Fallback:          FallbackOverCapacity,
		Reason: fmt.Sprintf("no executor has capacity; assigned least-loaded %s over capacity (%d/%d tasks)",
			pick.Name, pick.Load(), pick.MaxConcurrentTasks),
	}
	s.logger.Warn("assignment exceeds executor capacity",
		"executor_id", pick.ID, "load", pick.Load(), "max", pick.MaxConcurrentTasks, "fallback", sel.Fallback)
	return sel
}

func (s *Scorer) byAvailability(required []string, available []*executor.Executor) *Selection {
	var best *Selection
	for _, e := range available {
		avail := AvailabilityScore(e)
		if best == nil || avail > best.AvailabilityScore {
			best = &Selection{Executor: e, AvailabilityScore: avail, TotalScore: avail}
		}
	}
	best.Fallback = FallbackNoSkillMatch
	best.Reason = fmt.Sprintf("no available executor has any of %v; assigned %s on availability alone (%d/%d tasks)",
		required, best.Executor.Name, best.Executor.Load(), best.Executor.MaxConcurrentTasks)
	s.logger.Warn("assignment ignores skill requirements",
		"executor_id", best.Executor.ID, "required_skills", required, "fallback", best.Fallback)
	return best
}
