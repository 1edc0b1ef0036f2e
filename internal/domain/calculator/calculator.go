// Package calculator folds a referee's raw review events into a MetricsSnapshot.
// Compute is pure: it never mutates its inputs and the same inputs always
// produce the same snapshot.
package calculator

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/domain/stats"
)

const (
	day  = 24 * time.Hour
	year = 365.25 * 24 * time.Hour
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(c *Calculator) {
		c.policy = p
	}
}

// Calculator computes snapshots under a Policy.
type Calculator struct {
	policy Policy
}

// New creates a Calculator using DefaultPolicy unless overridden.
func New(opts ...Option) *Calculator {
	c := &Calculator{policy: DefaultPolicy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute builds the snapshot of referee at now from its expertise evidence and events.
// An empty event list yields the cold-start defaults.
func (c *Calculator) Compute(referee model.Referee, expertise model.Expertise, events []model.ReviewEvent, now time.Time) model.MetricsSnapshot {
	completed := 0
	for _, e := range events {
		if e.Accepted() && e.Submitted() {
			completed++
		}
	}

	return model.MetricsSnapshot{
		SchemaVersion:    model.SnapshotSchemaVersion,
		RefereeID:        referee.ID,
		ComputedAt:       now,
		TotalInvitations: len(events),
		TotalCompleted:   completed,
		Time:             c.timeMetrics(events),
		Quality:          c.qualityMetrics(events),
		Workload:         c.workloadMetrics(events, now),
		Reliability:      c.reliabilityMetrics(events, now),
		Expertise:        c.expertiseMetrics(referee, expertise, events, now),
		Journals:         c.journalMetrics(events),
	}
}

func days(d time.Duration) float64 {
	return math.Max(0, d.Hours()/24)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return stats.Clamp01(float64(num) / float64(den))
}

func orDefault(xs []float64, fn func([]float64) float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return fn(xs)
}

func reviewTimes(events []model.ReviewEvent) []float64 {
	var out []float64
	for _, e := range events {
		at, ok := e.AcceptedAt()
		if !ok || e.SubmittedAt == nil {
			continue
		}
		out = append(out, days(e.SubmittedAt.Sub(at)))
	}
	return out
}

func onTime(events []model.ReviewEvent) (onTime, due int) {
	for _, e := range events {
		if e.SubmittedAt == nil || e.DueAt == nil {
			continue
		}
		due++
		if !e.SubmittedAt.After(*e.DueAt) {
			onTime++
		}
	}
	return onTime, due
}

func (c *Calculator) timeMetrics(events []model.ReviewEvent) model.TimeMetrics {
	var response []float64
	for _, e := range events {
		if e.InvitedAt != nil && e.RespondedAt != nil {
			response = append(response, days(e.RespondedAt.Sub(*e.InvitedAt)))
		}
	}
	review := reviewTimes(events)

	m := model.TimeMetrics{
		AvgResponseTime:    orDefault(response, stats.Mean, c.policy.AvgResponseTime),
		AvgReviewTime:      orDefault(review, stats.Mean, c.policy.AvgReviewTime),
		FastestReview:      orDefault(review, stats.Min, c.policy.FastestReview),
		SlowestReview:      orDefault(review, stats.Max, c.policy.SlowestReview),
		ResponseTimeStdDev: stats.StdDev(response),
		ReviewTimeStdDev:   stats.StdDev(review),
		OnTimeRate:         c.policy.OnTimeRate,
	}
	if n, d := onTime(events); d > 0 {
		m.OnTimeRate = ratio(n, d)
	}
	return m
}

func (c *Calculator) qualityMetrics(events []model.ReviewEvent) model.QualityMetrics {
	var scores, thorough []float64
	for _, e := range events {
		if e.QualityScore != nil {
			scores = append(scores, *e.QualityScore)
		}
		if e.ReportLength != nil {
			thorough = append(thorough, math.Min(1, float64(*e.ReportLength)/c.policy.ThoroughWords))
		}
	}

	m := model.QualityMetrics{
		AvgQualityScore:    stats.Clamp(orDefault(scores, stats.Mean, c.policy.AvgQualityScore), 0, model.MaxQualityScore),
		QualityConsistency: c.policy.QualityConsistency,
		ReportThoroughness: stats.Clamp01(orDefault(thorough, stats.Mean, c.policy.ReportThoroughness)),
	}
	if len(scores) >= 2 {
		m.QualityConsistency = stats.StdDev(scores)
	}
	return m
}

func (c *Calculator) workloadMetrics(events []model.ReviewEvent, now time.Time) model.WorkloadMetrics {
	var m model.WorkloadMetrics
	for _, e := range events {
		if e.Open() {
			m.CurrentReviews++
		}
		if !e.Accepted() || e.SubmittedAt == nil || e.SubmittedAt.After(now) {
			continue
		}
		age := now.Sub(*e.SubmittedAt)
		if age <= 30*day {
			m.CompletedLast30d++
		}
		if age <= 90*day {
			m.CompletedLast90d++
		}
		if age <= 365*day {
			m.CompletedLast365d++
		}
	}

	m.MonthlyAverage = float64(m.CompletedLast365d) / 12
	m.PeakCapacity = c.peakConcurrent(events)

	capacity := m.PeakCapacity
	if capacity < c.policy.MinCapacity {
		capacity = c.policy.MinCapacity
	}
	m.AvailabilityScore = stats.Clamp01(1 - float64(m.CurrentReviews)/float64(capacity))

	load := math.Min(1, float64(m.CurrentReviews)/c.policy.BurnoutLoad)
	pace := math.Min(1, float64(m.CompletedLast30d)/math.Max(m.MonthlyAverage, c.policy.Epsilon))
	m.BurnoutRiskScore = stats.Clamp01(0.6*load + 0.4*pace)
	return m
}

type delta struct {
	at   time.Time
	step int
}

// peakConcurrent sweeps acceptance (+1) and end (-1) instants. Ends sort
// before starts at the same instant so back-to-back reviews do not overlap.
func (c *Calculator) peakConcurrent(events []model.ReviewEvent) int {
	deltas := make([]delta, 0, 2*len(events))
	for _, e := range events {
		start, ok := e.AcceptedAt()
		if !ok {
			continue
		}
		end := start.Add(c.policy.OpenReviewWindow)
		switch {
		case e.SubmittedAt != nil:
			end = *e.SubmittedAt
		case e.WithdrawnAt != nil:
			end = *e.WithdrawnAt
		}
		deltas = append(deltas, delta{at: start, step: 1}, delta{at: end, step: -1})
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		if deltas[i].at.Equal(deltas[j].at) {
			return deltas[i].step < deltas[j].step
		}
		return deltas[i].at.Before(deltas[j].at)
	})

	running, peak := 0, 0
	for _, d := range deltas {
		running += d.step
		if running > peak {
			peak = running
		}
	}
	return peak
}

func (c *Calculator) reliabilityMetrics(events []model.ReviewEvent, now time.Time) model.ReliabilityMetrics {
	var accepted, completed, ghosts, withdrawn, reminded, remindedAnswered int
	for _, e := range events {
		if e.Accepted() {
			accepted++
			if e.Submitted() {
				completed++
			} else if e.WithdrawnAt != nil {
				withdrawn++
			}
		}
		if e.Decision == model.DecisionNone && e.RespondedAt == nil &&
			e.InvitedAt != nil && now.Sub(*e.InvitedAt) > c.policy.GhostAfter {
			ghosts++
		}
		if e.ReminderCount > 0 {
			reminded++
			if e.RespondedAt != nil || e.Decision != model.DecisionNone {
				remindedAnswered++
			}
		}
	}

	invitations := len(events)
	return model.ReliabilityMetrics{
		AcceptanceRate:         ratio(accepted, invitations),
		CompletionRate:         ratio(completed, accepted),
		GhostRate:              ratio(ghosts, invitations),
		DeclineAfterAcceptRate: ratio(withdrawn, invitations),
		ReminderEffectiveness:  ratio(remindedAnswered, reminded),
	}
}

func (c *Calculator) expertiseMetrics(referee model.Referee, expertise model.Expertise, events []model.ReviewEvent, now time.Time) model.ExpertiseMetrics {
	confidence := make(map[string]float64, len(expertise)+len(referee.ExpertiseTags))
	for _, tag := range referee.ExpertiseTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			confidence[tag] = c.policy.DefaultTagConfidence
		}
	}
	for tag, entry := range expertise {
		if tag = strings.TrimSpace(tag); tag != "" {
			confidence[tag] = stats.Clamp01(entry.Confidence)
		}
	}

	areas := make([]string, 0, len(confidence))
	levels := make([]float64, 0, len(confidence))
	for tag, conf := range confidence {
		areas = append(areas, tag)
		levels = append(levels, conf)
	}
	sort.Strings(areas)
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	if len(levels) > c.policy.DepthTopN {
		levels = levels[:c.policy.DepthTopN]
	}

	return model.ExpertiseMetrics{
		ExpertiseAreas:      areas,
		ExpertiseConfidence: confidence,
		YearsExperience:     yearsExperience(referee, events, now),
		ExpertiseBreadth:    math.Min(1, float64(len(areas))/c.policy.BreadthAreas),
		ExpertiseDepth:      stats.Clamp01(stats.Mean(levels)),
	}
}

func yearsExperience(referee model.Referee, events []model.ReviewEvent, now time.Time) float64 {
	var earliest time.Time
	for _, e := range events {
		if e.InvitedAt != nil && (earliest.IsZero() || e.InvitedAt.Before(earliest)) {
			earliest = *e.InvitedAt
		}
	}
	if earliest.IsZero() {
		earliest = referee.CreatedAt
	}
	if earliest.IsZero() || earliest.After(now) {
		return 0
	}
	return float64(now.Sub(earliest)) / float64(year)
}

func (c *Calculator) journalMetrics(events []model.ReviewEvent) map[string]model.JournalMetrics {
	byJournal := make(map[string][]model.ReviewEvent)
	for _, e := range events {
		if e.JournalID != "" {
			byJournal[e.JournalID] = append(byJournal[e.JournalID], e)
		}
	}

	out := make(map[string]model.JournalMetrics, len(byJournal))
	for id, evs := range byJournal {
		var accepted, completed int
		var quality []float64
		for _, e := range evs {
			if !e.Accepted() {
				continue
			}
			accepted++
			if e.Submitted() {
				completed++
			}
			if e.QualityScore != nil {
				quality = append(quality, *e.QualityScore)
			}
		}

		jm := model.JournalMetrics{
			Invitations:     len(evs),
			Completed:       completed,
			AcceptanceRate:  ratio(accepted, len(evs)),
			AvgReviewTime:   orDefault(reviewTimes(evs), stats.Mean, c.policy.AvgReviewTime),
			AvgQualityScore: orDefault(quality, stats.Mean, c.policy.AvgQualityScore),
			OnTimeRate:      c.policy.OnTimeRate,
			Familiarity:     math.Min(1, float64(completed)/c.policy.FamiliarityReviews),
		}
		if n, d := onTime(evs); d > 0 {
			jm.OnTimeRate = ratio(n, d)
		}
		out[id] = jm
	}
	return out
}
