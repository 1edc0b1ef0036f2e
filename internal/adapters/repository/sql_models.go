package repository

import (
	"time"

	"github.com/okian/refbench/internal/domain/model"
	"gorm.io/datatypes"
)

type refereeRow struct {
	ID            string                      `gorm:"primaryKey;size:64"`
	Name          string                      `gorm:"size:255"`
	Email         string                      `gorm:"size:255"`
	Institution   string                      `gorm:"size:255"`
	ExpertiseJSON datatypes.JSONSlice[string] `gorm:"column:expertise_json"`
	HIndex        int                         `gorm:"column:h_index"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime:false"`
	Active        bool                        `gorm:"index"`
}

func (refereeRow) TableName() string { return "referees" }

func (r refereeRow) toModel() model.Referee {
	return model.Referee{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Institution:   r.Institution,
		ExpertiseTags: append([]string(nil), r.ExpertiseJSON...),
		HIndex:        r.HIndex,
		CreatedAt:     r.CreatedAt,
		Active:        r.Active,
	}
}

func refereeFromModel(r model.Referee) refereeRow {
	return refereeRow{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Institution:   r.Institution,
		ExpertiseJSON: datatypes.NewJSONSlice(append([]string{}, r.ExpertiseTags...)),
		HIndex:        r.HIndex,
		CreatedAt:     r.CreatedAt,
		Active:        r.Active,
	}
}

type manuscriptRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	JournalID string `gorm:"size:64;index"`
}

func (manuscriptRow) TableName() string { return "manuscripts" }

type reviewRow struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	ManuscriptID  string     `gorm:"size:64;uniqueIndex:idx_review_manuscript_referee"`
	RefereeID     string     `gorm:"size:64;index;uniqueIndex:idx_review_manuscript_referee"`
	InvitedAt     *time.Time
	RespondedAt   *time.Time
	DueAt         *time.Time
	SubmittedAt   *time.Time
	WithdrawnAt   *time.Time
	Decision      string `gorm:"size:16"`
	QualityScore  *float64
	ReportLength  *int
	ReminderCount int
}

func (reviewRow) TableName() string { return "review_history" }

// reviewWithJournal is a review_history row joined with its manuscript.
type reviewWithJournal struct {
	ManuscriptID  string
	RefereeID     string
	JournalID     *string
	InvitedAt     *time.Time
	RespondedAt   *time.Time
	DueAt         *time.Time
	SubmittedAt   *time.Time
	WithdrawnAt   *time.Time
	Decision      string
	QualityScore  *float64
	ReportLength  *int
	ReminderCount int
}

func (r reviewWithJournal) toModel() model.ReviewEvent {
	e := model.ReviewEvent{
		ManuscriptID:  r.ManuscriptID,
		RefereeID:     r.RefereeID,
		InvitedAt:     r.InvitedAt,
		RespondedAt:   r.RespondedAt,
		DueAt:         r.DueAt,
		SubmittedAt:   r.SubmittedAt,
		WithdrawnAt:   r.WithdrawnAt,
		Decision:      model.Decision(r.Decision),
		QualityScore:  r.QualityScore,
		ReportLength:  r.ReportLength,
		ReminderCount: r.ReminderCount,
	}
	if r.JournalID != nil {
		e.JournalID = *r.JournalID
	}
	return e
}

func reviewFromModel(e model.ReviewEvent) reviewRow {
	return reviewRow{
		ManuscriptID:  e.ManuscriptID,
		RefereeID:     e.RefereeID,
		InvitedAt:     e.InvitedAt,
		RespondedAt:   e.RespondedAt,
		DueAt:         e.DueAt,
		SubmittedAt:   e.SubmittedAt,
		WithdrawnAt:   e.WithdrawnAt,
		Decision:      string(e.Decision),
		QualityScore:  e.QualityScore,
		ReportLength:  e.ReportLength,
		ReminderCount: e.ReminderCount,
	}
}

type expertiseRow struct {
	RefereeID     string `gorm:"primaryKey;size:64"`
	Tag           string `gorm:"primaryKey;size:128;index"`
	Confidence    float64
	EvidenceCount int
}

func (expertiseRow) TableName() string { return "referee_expertise" }

// refereeTagRow indexes the tags a referee declares on the profile.
type refereeTagRow struct {
	RefereeID string `gorm:"primaryKey;size:64"`
	Tag       string `gorm:"primaryKey;size:128;index"`
}

func (refereeTagRow) TableName() string { return "referee_tags" }

func tagRowsFromModel(r model.Referee) []refereeTagRow {
	seen := make(map[string]struct{}, len(r.ExpertiseTags))
	rows := make([]refereeTagRow, 0, len(r.ExpertiseTags))
	for _, t := range r.ExpertiseTags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		rows = append(rows, refereeTagRow{RefereeID: r.ID, Tag: t})
	}
	return rows
}

type cacheRow struct {
	RefereeID     string                                   `gorm:"primaryKey;size:64"`
	SchemaVersion int                                      `gorm:"not null"`
	Snapshot      datatypes.JSONType[model.MetricsSnapshot] `gorm:"not null"`
	ComputedAt    time.Time                                `gorm:"not null"`
	ValidUntil    time.Time                                `gorm:"not null"`
}

func (cacheRow) TableName() string { return "metrics_cache" }

type historyRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RefereeID   string `gorm:"size:64;uniqueIndex:idx_history_referee_day"`
	Day         string `gorm:"size:10;uniqueIndex:idx_history_referee_day"`
	Speed       float64
	Quality     float64
	Reliability float64
	Expertise   float64
	Overall     float64
}

func (historyRow) TableName() string { return "metrics_history" }

func (h historyRow) toModel() model.HistoryPoint {
	return model.HistoryPoint{
		RefereeID: h.RefereeID,
		Day:       h.Day,
		Scores: model.Scores{
			Speed:       h.Speed,
			Quality:     h.Quality,
			Reliability: h.Reliability,
			Expertise:   h.Expertise,
			Overall:     h.Overall,
		},
	}
}

type benchmarkRow struct {
	Category   string                                   `gorm:"primaryKey;size:191"`
	Record     datatypes.JSONType[model.BenchmarkRecord] `gorm:"not null"`
	SampleSize int
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (benchmarkRow) TableName() string { return "benchmarks" }

func allTables() []any {
	return []any{
		&refereeRow{},
		&manuscriptRow{},
		&reviewRow{},
		&expertiseRow{},
		&refereeTagRow{},
		&cacheRow{},
		&historyRow{},
		&benchmarkRow{},
	}
}
