// Package ledger records every applied problem link change in a SQL
// database so apply runs can be audited and reverted by hand.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/linker"
	"github.com/efebarandurmaz/impactgraph/internal/logger"
)

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects with driver "postgres" or "sqlite" and migrates the
// schema.
func Open(driver, dsn string, logg *logger.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, apperr.Newf(apperr.CodeInvalidConfig, "unknown ledger driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "open ledger")
	}
	s := New(db, logg)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB, logg *logger.Logger) *Store {
	return &Store{db: db, log: logger.OrNop(logg).With("service", "LedgerStore")}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&AppliedLink{}); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

// Record implements linker.Recorder.
func (s *Store) Record(ctx context.Context, change linker.AppliedChange) error {
	before, err := encodeIDs(change.Before)
	if err != nil {
		return err
	}
	after, err := encodeIDs(change.After)
	if err != nil {
		return err
	}
	row := AppliedLink{
		RunID:      change.RunID,
		ProposalID: change.ProposalID,
		ProblemID:  change.ProblemID,
		Before:     before,
		After:      after,
		AppliedAt:  change.AppliedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperr.Wrap(apperr.CodeDataUnavailable, err, "record applied link")
	}
	s.log.Debug("applied link recorded", "run_id", change.RunID, "problem_id", change.ProblemID)
	return nil
}

// History returns the changes applied to a problem, newest first. limit
// <= 0 returns all of them.
func (s *Store) History(ctx context.Context, problemID string, limit int) ([]linker.AppliedChange, error) {
	q := s.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		Order("applied_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []AppliedLink
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "read ledger history")
	}
	return toChanges(rows)
}

// Run returns every change written by one apply run in insertion order.
func (s *Store) Run(ctx context.Context, runID string) ([]linker.AppliedChange, error) {
	var rows []AppliedLink
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "read ledger run")
	}
	return toChanges(rows)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toChanges(rows []AppliedLink) ([]linker.AppliedChange, error) {
	out := make([]linker.AppliedChange, 0, len(rows))
	for _, r := range rows {
		before, err := decodeIDs(r.Before)
		if err != nil {
			return nil, err
		}
		after, err := decodeIDs(r.After)
		if err != nil {
			return nil, err
		}
		out = append(out, linker.AppliedChange{
			RunID:      r.RunID,
			ProposalID: r.ProposalID,
			ProblemID:  r.ProblemID,
			Before:     before,
			After:      after,
			AppliedAt:  r.AppliedAt.UTC(),
		})
	}
	return out, nil
}

func encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode link ids: %w", err)
	}
	return b, nil
}

func decodeIDs(raw []byte) ([]string, error) {
	ids := []string{}
	if len(raw) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedTable, err, "decode ledger link ids")
	}
	return ids, nil
}

var _ linker.Recorder = (*Store)(nil)
