package repository

import (
	"context"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/pkg/logger"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	defaultSlowQuery    = 200 * time.Millisecond
	defaultMaxOpenConns = 16
	insertBatchSize     = 200
)

// SQL is a gorm-backed Store. Every query is parameterised by gorm.
type SQL struct {
	db           *gorm.DB
	driver       string
	log          logger.Logger
	slowQuery    time.Duration
	maxOpenConns int
}

// Open connects to the store and migrates its tables.
func Open(driver, dsn string, opts ...Option) (*SQL, error) {
	s := &SQL{
		driver:       driver,
		log:          logger.Nop(),
		slowQuery:    defaultSlowQuery,
		maxOpenConns: defaultMaxOpenConns,
	}
	for _, opt := range opts {
		opt(s)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Wrapf(ErrUnsupportedDriver, "driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(s.log, s.slowQuery),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "access connection pool")
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
	}

	if err := db.AutoMigrate(allTables()...); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate schema")
	}

	s.db = db
	return s, nil
}

// Close releases the connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "access connection pool")
	}
	return sqlDB.Close()
}

// PutReferee implements Writer.
func (s *SQL) PutReferee(ctx context.Context, r model.Referee) error {
	defer observe("put_referee", time.Now())
	row := refereeFromModel(r)
	tags := tagRowsFromModel(r)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
			Create(&row).Error
		if err != nil {
			return err
		}
		if err := tx.Where("referee_id = ?", r.ID).Delete(&refereeTagRow{}).Error; err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		return tx.Create(&tags).Error
	})
	return errors.Wrapf(err, "put referee %s", r.ID)
}

// PutExpertise implements Writer.
func (s *SQL) PutExpertise(ctx context.Context, refereeID string, exp model.Expertise) error {
	defer observe("put_expertise", time.Now())
	rows := make([]expertiseRow, 0, len(exp))
	for tag, e := range exp {
		rows = append(rows, expertiseRow{RefereeID: refereeID, Tag: tag, Confidence: e.Confidence, EvidenceCount: e.EvidenceCount})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Tag < rows[j].Tag })

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("referee_id = ?", refereeID).Delete(&expertiseRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	return errors.Wrapf(err, "put expertise %s", refereeID)
}

// AddReviewEvents implements Writer.
func (s *SQL) AddReviewEvents(ctx context.Context, events ...model.ReviewEvent) error {
	defer observe("add_review_events", time.Now())
	if len(events) == 0 {
		return nil
	}
	if err := validateAll(events); err != nil {
		return err
	}

	journals := make(map[string]string)
	reviews := make([]reviewRow, 0, len(events))
	for _, e := range events {
		journals[e.ManuscriptID] = e.JournalID
		reviews = append(reviews, reviewFromModel(e))
	}
	manuscripts := make([]manuscriptRow, 0, len(journals))
	for id, journal := range journals {
		manuscripts = append(manuscripts, manuscriptRow{ID: id, JournalID: journal})
	}
	sort.Slice(manuscripts, func(i, j int) bool { return manuscripts[i].ID < manuscripts[j].ID })

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"journal_id"}),
		}).CreateInBatches(&manuscripts, insertBatchSize).Error
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "manuscript_id"}, {Name: "referee_id"}},
			UpdateAll: true,
		}).CreateInBatches(&reviews, insertBatchSize).Error
	})
	return errors.Wrap(err, "add review events")
}

// GetReferee implements EventSource.
func (s *SQL) GetReferee(ctx context.Context, id string) (model.Referee, error) {
	defer observe("get_referee", time.Now())
	var row refereeRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.Referee{}, errors.Wrap(model.ErrRefereeNotFound, id)
	case err != nil:
		return model.Referee{}, errors.Wrapf(err, "get referee %s", id)
	}
	return row.toModel(), nil
}

// GetReviewEvents implements EventSource.
func (s *SQL) GetReviewEvents(ctx context.Context, id string) ([]model.ReviewEvent, error) {
	defer observe("get_review_events", time.Now())
	var rows []reviewWithJournal
	err := s.db.WithContext(ctx).
		Table("review_history").
		Select("review_history.manuscript_id, review_history.referee_id, manuscripts.journal_id, " +
			"review_history.invited_at, review_history.responded_at, review_history.due_at, " +
			"review_history.submitted_at, review_history.withdrawn_at, review_history.decision, " +
			"review_history.quality_score, review_history.report_length, review_history.reminder_count").
		Joins("LEFT JOIN manuscripts ON manuscripts.id = review_history.manuscript_id").
		Where("review_history.referee_id = ?", id).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get review events %s", id)
	}

	events := make([]model.ReviewEvent, len(rows))
	for i, r := range rows {
		events[i] = r.toModel()
	}
	sortEvents(events)
	return events, nil
}

// GetExpertise implements EventSource.
func (s *SQL) GetExpertise(ctx context.Context, id string) (model.Expertise, error) {
	defer observe("get_expertise", time.Now())
	var rows []expertiseRow
	if err := s.db.WithContext(ctx).Where("referee_id = ?", id).Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "get expertise %s", id)
	}
	out := make(model.Expertise, len(rows))
	for _, r := range rows {
		out[r.Tag] = model.ExpertiseEntry{Confidence: r.Confidence, EvidenceCount: r.EvidenceCount}
	}
	return out, nil
}

// ListActiveRefereeIDs implements EventSource.
func (s *SQL) ListActiveRefereeIDs(ctx context.Context) ([]string, error) {
	defer observe("list_active_referee_ids", time.Now())
	var ids []string
	err := s.db.WithContext(ctx).Model(&refereeRow{}).Where("active = ?", true).Order("id").Pluck("id", &ids).Error
	return ids, errors.Wrap(err, "list active referees")
}

// GetRefereesByExpertise implements EventSource.
func (s *SQL) GetRefereesByExpertise(ctx context.Context, tag string, minConfidence float64) ([]string, error) {
	defer observe("get_referees_by_expertise", time.Now())
	db := s.db.WithContext(ctx)

	var evidenced []string
	err := db.Model(&expertiseRow{}).
		Where("tag = ? AND confidence >= ?", tag, minConfidence).
		Pluck("referee_id", &evidenced).Error
	if err != nil {
		return nil, errors.Wrapf(err, "referees by expertise %s", tag)
	}

	var declared []string
	err = db.Model(&refereeTagRow{}).Where("tag = ?", tag).Pluck("referee_id", &declared).Error
	if err != nil {
		return nil, errors.Wrapf(err, "referees by declared tag %s", tag)
	}

	set := make(map[string]struct{}, len(evidenced)+len(declared))
	for _, id := range evidenced {
		set[id] = struct{}{}
	}
	for _, id := range declared {
		set[id] = struct{}{}
	}
	return sortedKeys(set), nil
}

// GetRefereesByJournal implements EventSource.
func (s *SQL) GetRefereesByJournal(ctx context.Context, journalID string) ([]string, error) {
	defer observe("get_referees_by_journal", time.Now())
	var ids []string
	err := s.db.WithContext(ctx).
		Table("review_history").
		Distinct("review_history.referee_id").
		Joins("JOIN manuscripts ON manuscripts.id = review_history.manuscript_id").
		Where("manuscripts.journal_id = ?", journalID).
		Pluck("review_history.referee_id", &ids).Error
	if err != nil {
		return nil, errors.Wrapf(err, "referees by journal %s", journalID)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetCacheEntry implements CacheStore. The schema version is read first so a
// snapshot written under another layout is never decoded.
func (s *SQL) GetCacheEntry(ctx context.Context, refereeID string) (model.CacheEntry, bool, error) {
	defer observe("get_cache_entry", time.Now())
	db := s.db.WithContext(ctx)

	var head cacheRow
	err := db.Select("referee_id", "schema_version").Where("referee_id = ?", refereeID).Take(&head).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.CacheEntry{}, false, nil
	case err != nil:
		return model.CacheEntry{}, false, errors.Wrapf(err, "get cache entry %s", refereeID)
	}
	if head.SchemaVersion != model.SnapshotSchemaVersion {
		return model.CacheEntry{}, false, nil
	}

	var row cacheRow
	if err := db.Where("referee_id = ?", refereeID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.CacheEntry{}, false, nil
		}
		return model.CacheEntry{}, false, errors.Wrapf(err, "get cache entry %s", refereeID)
	}
	return model.CacheEntry{
		RefereeID:  row.RefereeID,
		Snapshot:   row.Snapshot.Data(),
		ComputedAt: row.ComputedAt,
		ValidUntil: row.ValidUntil,
	}, true, nil
}

// PutCacheEntry implements CacheStore.
func (s *SQL) PutCacheEntry(ctx context.Context, entry model.CacheEntry) error {
	defer observe("put_cache_entry", time.Now())
	row := cacheRow{
		RefereeID:     entry.RefereeID,
		SchemaVersion: entry.Snapshot.SchemaVersion,
		Snapshot:      datatypes.NewJSONType(entry.Snapshot),
		ComputedAt:    entry.ComputedAt,
		ValidUntil:    entry.ValidUntil,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Select("referee_id", "computed_at")
		if s.driver != DriverSQLite {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var cur cacheRow
		err := q.Where("referee_id = ?", entry.RefereeID).Take(&cur).Error
		switch {
		case err == nil && cur.ComputedAt.After(entry.ComputedAt):
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "referee_id"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
	return errors.Wrapf(err, "put cache entry %s", entry.RefereeID)
}

// UpsertHistory implements HistoryStore.
func (s *SQL) UpsertHistory(ctx context.Context, p model.HistoryPoint) error {
	defer observe("upsert_history", time.Now())
	row := historyRow{
		RefereeID:   p.RefereeID,
		Day:         p.Day,
		Speed:       p.Speed,
		Quality:     p.Quality,
		Reliability: p.Reliability,
		Expertise:   p.Expertise,
		Overall:     p.Overall,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referee_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"speed", "quality", "reliability", "expertise", "overall"}),
	}).Create(&row).Error
	return errors.Wrapf(err, "upsert history %s/%s", p.RefereeID, p.Day)
}

// History implements HistoryStore.
func (s *SQL) History(ctx context.Context, refereeID, fromDay, toDay string) ([]model.HistoryPoint, error) {
	defer observe("history", time.Now())
	var rows []historyRow
	err := s.db.WithContext(ctx).
		Where("referee_id = ? AND day >= ? AND day <= ?", refereeID, fromDay, toDay).
		Order("day").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "history %s", refereeID)
	}
	out := make([]model.HistoryPoint, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// GetBenchmark implements BenchmarkStore.
func (s *SQL) GetBenchmark(ctx context.Context, category string) (model.BenchmarkRecord, bool, error) {
	defer observe("get_benchmark", time.Now())
	var row benchmarkRow
	err := s.db.WithContext(ctx).Where("category = ?", category).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.BenchmarkRecord{}, false, nil
	case err != nil:
		return model.BenchmarkRecord{}, false, errors.Wrapf(err, "get benchmark %s", category)
	}
	return row.Record.Data(), true, nil
}

// PutBenchmark implements BenchmarkStore.
func (s *SQL) PutBenchmark(ctx context.Context, record model.BenchmarkRecord) error {
	defer observe("put_benchmark", time.Now())
	if record.Category == "" {
		return errors.Wrap(ErrInvalidBenchmark, "empty category")
	}
	row := benchmarkRow{
		Category:   record.Category,
		Record:     datatypes.NewJSONType(record),
		SampleSize: record.SampleSize,
		UpdatedAt:  record.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		UpdateAll: true,
	}).Create(&row).Error
	return errors.Wrapf(err, "put benchmark %s", record.Category)
}

// DeleteBenchmark implements BenchmarkStore.
func (s *SQL) DeleteBenchmark(ctx context.Context, category string) error {
	defer observe("delete_benchmark", time.Now())
	q := s.db.WithContext(ctx)
	if category == "" {
		q = q.Where("1 = 1")
	} else {
		q = q.Where("category = ?", category)
	}
	return errors.Wrapf(q.Delete(&benchmarkRow{}).Error, "delete benchmark %q", category)
}
