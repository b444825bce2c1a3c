package journal

import (
	"context"

	"gorm.io/gorm"
)

type IBookEvent interface {
	BulkCreate(ctx context.Context, records []*BookEvent) error
}

type BookEventSQLRepo struct {
	db        *gorm.DB
	batchSize int
}

func NewBookEventSQLRepo(db *gorm.DB, batchSize int) *BookEventSQLRepo {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BookEventSQLRepo{
		db:        db,
		batchSize: batchSize,
	}
}

func (r *BookEventSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *BookEventSQLRepo) BulkCreate(ctx context.Context, records []*BookEvent) error {
	if len(records) == 0 {
		return nil
	}
	return r.dbWithContext(ctx).CreateInBatches(records, r.batchSize).Error
}
