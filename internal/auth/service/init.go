package service

import (
	"context"
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/password"
)

// Init seeds the records a fresh installation needs, all named after the
// service's app name.
type Init struct {
	db      *gorm.DB
	appName string
	// Endpoint is the base URL of the seeded application.
	endpoint string
	logger   logrus.FieldLogger
}

func NewInit(db *gorm.DB, appName, endpoint string, logger logrus.FieldLogger) *Init {
	return &Init{db: db, appName: appName, endpoint: endpoint, logger: logger}
}

func (s *Init) Domain(ctx context.Context) (uuid.UUID, error) {
	s.logger.Info("Initialize domain data.")
	d := &entity.Domain{
		UUID:        uuid.New(),
		Name:        s.appName,
		DisplayName: s.appName,
		Profile:     entity.Profile{},
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to create domain")
	}
	return d.UUID, nil
}

func (s *Init) App(ctx context.Context, domain uuid.UUID) (uuid.UUID, error) {
	s.logger.Info("Initialize app data.")
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to generate app secret")
	}

	setting := entity.DefaultAppSetting()
	if s.endpoint != "" {
		setting.BaseSetting.Endpoint = s.endpoint
	}

	a := &entity.Application{
		UUID:        uuid.New(),
		DomainUUID:  domain,
		Name:        s.appName,
		DisplayName: s.appName,
		Secret:      secret,
		Profile:     entity.Profile{},
		Setting:     setting,
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to create app")
	}
	return a.UUID, nil
}

// User creates a user whose username is the app name. An empty pw uses the
// app name as password.
func (s *Init) User(ctx context.Context, domain uuid.UUID, pw string) (uuid.UUID, error) {
	s.logger.Info("Initialize user data.")
	if pw == "" {
		pw = s.appName
	}
	hash, err := password.Hash(pw)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	username := s.appName
	u := &entity.User{
		UUID:       id,
		DomainUUID: domain,
		Username:   &username,
		Password:   hash,
		Profile: entity.UserProfile{
			Sub:               id.String(),
			PreferredUsername: username,
			Gender:            "unknown",
		},
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to create user")
	}
	return id, nil
}

// Seeded are the records created by All.
type Seeded struct {
	Domain uuid.UUID
	App    uuid.UUID
	User   uuid.UUID
}

// All seeds a domain with one app and one user in a single transaction.
func (s *Init) All(ctx context.Context, pw string) (Seeded, error) {
	var ret Seeded
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts := *s
		ts.db = tx

		var err error
		if ret.Domain, err = ts.Domain(ctx); err != nil {
			return err
		}
		if ret.App, err = ts.App(ctx, ret.Domain); err != nil {
			return err
		}
		ret.User, err = ts.User(ctx, ret.Domain, pw)
		return err
	})
	return ret, err
}
