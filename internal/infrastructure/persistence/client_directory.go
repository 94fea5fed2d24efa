package persistence

import (
	"context"

	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormClientDirectory answers client existence checks against the clients
// table. Client management itself belongs to another context; invoicing
// only needs the predicate.
type GormClientDirectory struct {
	db *gorm.DB
}

// NewGormClientDirectory creates a new GormClientDirectory
func NewGormClientDirectory(db *gorm.DB) *GormClientDirectory {
	return &GormClientDirectory{db: db}
}

// ClientExists reports whether a client with the given ID exists
func (d *GormClientDirectory) ClientExists(ctx context.Context, clientID uuid.UUID) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.ClientModel{}).
		Where("id = ?", clientID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
