package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

// RecordRepository persists generation records
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, rec *model.GenerationRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (r *RecordRepository) FindByID(ctx context.Context, id string) (*model.GenerationRecord, error) {
	var rec model.GenerationRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, notFound(err, "record not found")
	}
	return &rec, nil
}

func (r *RecordRepository) FindByGenerationID(ctx context.Context, generationID string) (*model.GenerationRecord, error) {
	var rec model.GenerationRecord
	err := r.db.WithContext(ctx).Where("generation_id = ?", generationID).First(&rec).Error
	if err != nil {
		return nil, notFound(err, "record not found")
	}
	return &rec, nil
}

// FindByOwner returns every record of an owner, newest first
func (r *RecordRepository) FindByOwner(ctx context.Context, ownerID string) ([]model.GenerationRecord, error) {
	var recs []model.GenerationRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, nil
}

// FindByOwnerPage returns one page of an owner's records and the owner's total
func (r *RecordRepository) FindByOwnerPage(ctx context.Context, ownerID string, page, size int) ([]model.GenerationRecord, int64, error) {
	return r.page(r.db.WithContext(ctx).Model(&model.GenerationRecord{}).Where("owner_id = ?", ownerID), page, size)
}

// ListPage returns one page of all records and the overall total
func (r *RecordRepository) ListPage(ctx context.Context, page, size int) ([]model.GenerationRecord, int64, error) {
	return r.page(r.db.WithContext(ctx).Model(&model.GenerationRecord{}), page, size)
}

func (r *RecordRepository) page(q *gorm.DB, page, size int) ([]model.GenerationRecord, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	recs := make([]model.GenerationRecord, 0, size)
	err := q.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset(page * size).
		Limit(size).
		Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, total, nil
}

// Update writes every column except created_at
func (r *RecordRepository) Update(ctx context.Context, rec *model.GenerationRecord) error {
	return update(r.db.WithContext(ctx), rec)
}

// Mutate loads the row under a write lock, applies fn and saves the result in one
// transaction. If fn fails nothing is written and fn's error is returned.
func (r *RecordRepository) Mutate(ctx context.Context, id string, fn func(rec *model.GenerationRecord) error) (*model.GenerationRecord, error) {
	var out *model.GenerationRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.GenerationRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&rec).Error
		if err != nil {
			return notFound(err, "record not found")
		}

		if err := fn(&rec); err != nil {
			return err
		}
		if err := update(tx, &rec); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.GenerationRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("record not found")
	}
	return nil
}

func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.GenerationRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func update(db *gorm.DB, rec *model.GenerationRecord) error {
	err := db.Model(rec).Select("*").Omit("id", "created_at").Updates(rec).Error
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(message)
	}
	return fmt.Errorf("failed to query database: %w", err)
}
