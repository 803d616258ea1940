package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/response"
)

type Apps struct {
	db *gorm.DB
}

func NewApps(db *gorm.DB) *Apps {
	return &Apps{db: db}
}

// Find returns the application with the given UUID.
func (s *Apps) Find(ctx context.Context, id uuid.UUID) (*entity.Application, error) {
	var a entity.Application
	if err := s.db.WithContext(ctx).Where("uuid = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NotFound()
		}
		return nil, response.Internal(errors.Wrap(err, "failed to query application"))
	}
	return &a, nil
}

func (s *Apps) List(ctx context.Context) ([]entity.Application, error) {
	var as []entity.Application
	return as, s.db.WithContext(ctx).Order("id").Find(&as).Error
}

// Domains lists the domains.
func (s *Apps) Domains(ctx context.Context) ([]entity.Domain, error) {
	var ds []entity.Domain
	return ds, s.db.WithContext(ctx).Order("id").Find(&ds).Error
}
