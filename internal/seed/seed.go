// Package seed generates synthetic referees and review histories for demos
// and load tests.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/refbench/internal/adapters/repository"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/logger"
)

const (
	day = 24 * time.Hour

	defaultReferees = 50
	defaultWorkers  = 4

	minInvitations   = 4
	maxInvitations   = 40
	historyDays      = 730
	maxYears         = 15
	dueDays          = 21
	openWindowDays   = 45
	inactiveFraction = 0.05
	withdrawRate     = 0.03
)

// tier shapes one referee's behaviour.
type tier struct {
	name        string
	reviewDays  float64 // mean days from acceptance to submission
	reviewJit   float64
	quality     float64
	qualityJit  float64
	declineRate float64
	ghostRate   float64
	weight      int
}

// Tiers mirror a skewed population: most referees are average, a few are
// elite or chronically slow.
var tiers = []tier{ //nolint:gochecknoglobals // read-only table
	{name: "average", reviewDays: 21, reviewJit: 6, quality: 6.5, qualityJit: 1.0, declineRate: 0.30, ghostRate: 0.05, weight: 5},
	{name: "fast", reviewDays: 9, reviewJit: 3, quality: 7.0, qualityJit: 0.8, declineRate: 0.20, ghostRate: 0.02, weight: 2},
	{name: "elite", reviewDays: 12, reviewJit: 3, quality: 8.8, qualityJit: 0.4, declineRate: 0.25, ghostRate: 0.01, weight: 1},
	{name: "slow", reviewDays: 38, reviewJit: 10, quality: 6.0, qualityJit: 1.5, declineRate: 0.35, ghostRate: 0.10, weight: 2},
	{name: "erratic", reviewDays: 25, reviewJit: 15, quality: 5.5, qualityJit: 2.5, declineRate: 0.45, ghostRate: 0.15, weight: 1},
}

// Dataset is one generated population.
type Dataset struct {
	Referees  []model.Referee
	Expertise map[string]model.Expertise
	Events    map[string][]model.ReviewEvent
}

// Summary reports what Seed wrote.
type Summary struct {
	Referees int `json:"referees"`
	Events   int `json:"events"`
	Journals int `json:"journals"`
}

// Generator produces reproducible synthetic data.
type Generator struct {
	referees int
	journals []string
	tags     []string
	seed     uint64
	workers  int
	now      func() time.Time
	log      logger.Logger
}

// New returns a Generator with a fixed default seed.
func New(opts ...Option) *Generator {
	g := &Generator{
		referees: defaultReferees,
		journals: []string{"jne", "jcs", "jbio", "jphys", "jecon"},
		tags:     []string{"ecology", "genetics", "statistics", "machine-learning", "neuroscience", "economics", "optics", "epidemiology"},
		seed:     1,
		workers:  defaultWorkers,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the dataset in memory. The same seed and clock always
// yield the same dataset.
func (g *Generator) Generate() Dataset {
	rng := rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))
	now := g.now().UTC()

	ds := Dataset{
		Referees:  make([]model.Referee, 0, g.referees),
		Expertise: make(map[string]model.Expertise, g.referees),
		Events:    make(map[string][]model.ReviewEvent, g.referees),
	}
	for i := 0; i < g.referees; i++ {
		id := g.id("referee", i)
		t := pickTier(rng)
		ref, exp := g.profile(rng, id, i, now)
		ds.Referees = append(ds.Referees, ref)
		ds.Expertise[id] = exp
		ds.Events[id] = g.history(rng, id, t, now)
	}
	return ds
}

// Seed generates a dataset and writes it through w.
func (g *Generator) Seed(ctx context.Context, w repository.Writer) (Summary, error) {
	ds := g.Generate()
	g.log.Info(ctx, "seeding synthetic referees",
		logger.Int("referees", len(ds.Referees)),
		logger.Int("journals", len(g.journals)),
		logger.Int("workers", g.workers))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, ref := range ds.Referees {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.PutReferee(ctx, ref); err != nil {
				return fmt.Errorf("put referee %s: %w", ref.ID, err)
			}
			if err := w.PutExpertise(ctx, ref.ID, ds.Expertise[ref.ID]); err != nil {
				return fmt.Errorf("put expertise %s: %w", ref.ID, err)
			}
			if err := w.AddReviewEvents(ctx, ds.Events[ref.ID]...); err != nil {
				return fmt.Errorf("add events %s: %w", ref.ID, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Summary{}, err
	}

	sum := Summary{Referees: len(ds.Referees), Journals: len(g.journals)}
	for _, evs := range ds.Events {
		sum.Events += len(evs)
	}
	g.log.Info(ctx, "seeding complete", logger.Int("referees", sum.Referees), logger.Int("events", sum.Events))
	return sum, nil
}

// id derives a stable UUID from the seed, kind and index.
func (g *Generator) id(kind string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("refbench:%d:%s:%d", g.seed, kind, i))).String()
}

func pickTier(rng *rand.Rand) tier {
	total := 0
	for _, t := range tiers {
		total += t.weight
	}
	n := rng.IntN(total)
	for _, t := range tiers {
		if n < t.weight {
			return t
		}
		n -= t.weight
	}
	return tiers[0]
}

func (g *Generator) profile(rng *rand.Rand, id string, i int, now time.Time) (model.Referee, model.Expertise) {
	n := 2 + rng.IntN(3)
	if n > len(g.tags) {
		n = len(g.tags)
	}
	perm := rng.Perm(len(g.tags))[:n]

	exp := make(model.Expertise, n)
	declared := make([]string, 0, 1)
	for k, p := range perm {
		tag := g.tags[p]
		exp[tag] = model.ExpertiseEntry{
			Confidence:    round2(0.4 + rng.Float64()*0.55),
			EvidenceCount: 1 + rng.IntN(20),
		}
		if k == 0 {
			declared = append(declared, tag)
		}
	}

	years := 1 + rng.IntN(maxYears)
	return model.Referee{
		ID:            id,
		Name:          fmt.Sprintf("Referee %03d", i+1),
		Email:         fmt.Sprintf("referee%03d@example.org", i+1),
		Institution:   fmt.Sprintf("Institute %d", 1+rng.IntN(12)),
		ExpertiseTags: declared,
		HIndex:        rng.IntN(60),
		CreatedAt:     now.AddDate(-years, 0, -rng.IntN(365)),
		Active:        rng.Float64() >= inactiveFraction,
	}, exp
}

func (g *Generator) history(rng *rand.Rand, id string, t tier, now time.Time) []model.ReviewEvent {
	n := minInvitations + rng.IntN(maxInvitations-minInvitations+1)
	events := make([]model.ReviewEvent, 0, n)
	for k := 0; k < n; k++ {
		invited := now.Add(-time.Duration(rng.IntN(historyDays)) * day).Add(-time.Duration(rng.IntN(24)) * time.Hour)
		ev := model.ReviewEvent{
			ManuscriptID: g.id("manuscript:"+id, k),
			RefereeID:    id,
			JournalID:    g.journals[rng.IntN(len(g.journals))],
			InvitedAt:    ptr(invited),
		}

		roll := rng.Float64()
		if roll < t.ghostRate {
			events = append(events, ev)
			continue
		}
		responded := invited.Add(time.Duration(rng.Float64()*5*24) * time.Hour)
		if responded.After(now) {
			responded = now
		}
		ev.RespondedAt = ptr(responded)
		if roll < t.ghostRate+t.declineRate {
			ev.Decision = model.DecisionDeclined
			events = append(events, ev)
			continue
		}

		ev.Decision = model.DecisionAccepted
		ev.DueAt = ptr(responded.Add(dueDays * day))
		if rng.Float64() < withdrawRate {
			ev.WithdrawnAt = ptr(responded.Add(time.Duration(1+rng.IntN(10)) * day))
			events = append(events, ev)
			continue
		}

		reviewDays := math.Max(1, t.reviewDays+rng.NormFloat64()*t.reviewJit)
		submitted := responded.Add(time.Duration(reviewDays * float64(day)))
		if submitted.After(now) && now.Sub(responded) < openWindowDays*day {
			// Still in progress.
			if submitted.After(*ev.DueAt) {
				ev.ReminderCount = 1
			}
			events = append(events, ev)
			continue
		}
		if submitted.After(now) {
			submitted = now
		}
		ev.SubmittedAt = ptr(submitted)
		if submitted.After(*ev.DueAt) {
			ev.ReminderCount = 1 + rng.IntN(3)
		}
		q := round2(math.Min(model.MaxQualityScore, math.Max(0, t.quality+rng.NormFloat64()*t.qualityJit)))
		ev.QualityScore = &q
		words := 300 + rng.IntN(2700)
		ev.ReportLength = &words
		events = append(events, ev)
	}
	return events
}

func ptr[T any](v T) *T { return &v }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
