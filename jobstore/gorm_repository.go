package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/jobflow/job"
)

// jobRow is the GORM mapping of a job record. Opaque payloads are stored as
// JSON blobs so the schema stays identical across dialects.
type jobRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	Owner           string `gorm:"size:128;index"`
	Task            string `gorm:"type:text"`
	Status          string `gorm:"size:32;index"`
	CurrentPhase    string `gorm:"size:128"`
	ProgressMessage string `gorm:"type:text"`
	HITLType        string `gorm:"column:hitl_type;size:64"`
	HITLData        []byte `gorm:"column:hitl_data"`
	Result          []byte
	Error           string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (jobRow) TableName() string { return "jobs" }

// GormJobRepository is a SQL-backed Repository implementation. It works with
// any dialect the factory can open (postgres, mysql, sqlite).
type GormJobRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormJobRepository creates a SQL repository and migrates the jobs table.
func NewGormJobRepository(db *gorm.DB, logger *zap.Logger) (*GormJobRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&jobRow{}); err != nil {
		return nil, fmt.Errorf("migrate jobs table: %w", err)
	}
	return &GormJobRepository{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_job_repository")),
	}, nil
}

// Create persists a record. It is an upsert keyed on id, so retries are safe.
func (r *GormJobRepository) Create(ctx context.Context, rec *job.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

// Update applies a partial-merge patch: only columns present in the patch are
// written. Applying the same patch twice is a no-op the second time.
func (r *GormJobRepository) Update(ctx context.Context, id string, patch job.Patch) error {
	if id == "" {
		return ErrInvalidInput
	}
	if patch.IsZero() {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}

	updates := map[string]any{"updated_at": time.Now()}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.CurrentPhase != nil {
		updates["current_phase"] = *patch.CurrentPhase
	}
	if patch.ProgressMessage != nil {
		updates["progress_message"] = *patch.ProgressMessage
	}
	if patch.HITLType != nil {
		updates["hitl_type"] = *patch.HITLType
	}
	if patch.HITLData != nil {
		data, err := json.Marshal(patch.HITLData)
		if err != nil {
			return fmt.Errorf("marshal hitl data: %w", err)
		}
		updates["hitl_data"] = data
	}
	if patch.Result != nil {
		data, err := json.Marshal(patch.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		updates["result"] = data
	}
	if patch.Error != nil {
		updates["error"] = *patch.Error
	}

	return r.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(updates).Error
}

// GetByID retrieves a record. Returns ErrNotFound for unknown ids.
func (r *GormJobRepository) GetByID(ctx context.Context, id string) (*job.Record, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	var row jobRow
	err := r.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

// Close closes the underlying connection pool.
func (r *GormJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (r *GormJobRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toRow(rec *job.Record) (*jobRow, error) {
	row := &jobRow{
		ID:              rec.ID,
		Owner:           rec.Owner,
		Task:            rec.Task,
		Status:          string(rec.Status),
		CurrentPhase:    rec.CurrentPhase,
		ProgressMessage: rec.ProgressMessage,
		HITLType:        rec.HITLType,
		Error:           rec.Error,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.HITLData != nil {
		data, err := json.Marshal(rec.HITLData)
		if err != nil {
			return nil, fmt.Errorf("marshal hitl data: %w", err)
		}
		row.HITLData = data
	}
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		row.Result = data
	}
	return row, nil
}

func fromRow(row *jobRow) (*job.Record, error) {
	rec := &job.Record{
		ID:              row.ID,
		Owner:           row.Owner,
		Task:            row.Task,
		Status:          job.Status(row.Status),
		CurrentPhase:    row.CurrentPhase,
		ProgressMessage: row.ProgressMessage,
		HITLType:        row.HITLType,
		Error:           row.Error,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if len(row.HITLData) > 0 {
		if err := json.Unmarshal(row.HITLData, &rec.HITLData); err != nil {
			return nil, fmt.Errorf("unmarshal hitl data: %w", err)
		}
	}
	if len(row.Result) > 0 {
		if err := json.Unmarshal(row.Result, &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return rec, nil
}

var _ Repository = (*GormJobRepository)(nil)
