// Package entity holds the database models of the auth service.
package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Domain groups applications and users.
type Domain struct {
	ID          uint      `gorm:"primaryKey"`
	UUID        uuid.UUID `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	Name        string    `gorm:"uniqueIndex;not null"`
	DisplayName string    `gorm:"not null"`
	Profile     Profile   `gorm:"type:text;serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Application is a relying party. Its UUID is the OAuth2 client_id.
type Application struct {
	ID          uint      `gorm:"primaryKey"`
	UUID        uuid.UUID `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	DomainUUID  uuid.UUID `gorm:"column:domain_uuid;type:varchar(36);index;not null"`
	Name        string    `gorm:"uniqueIndex;not null"`
	DisplayName string    `gorm:"not null"`
	// Secret keys the application's access tokens.
	Secret    []byte     `gorm:"not null"`
	Profile   Profile    `gorm:"type:text;serializer:json"`
	Setting   AppSetting `gorm:"type:text;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Application) TableName() string {
	return "apps"
}

type User struct {
	ID         uint      `gorm:"primaryKey"`
	UUID       uuid.UUID `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	DomainUUID uuid.UUID `gorm:"column:domain_uuid;type:varchar(36);index;not null"`
	Username   *string   `gorm:"uniqueIndex"`
	Email      *string   `gorm:"uniqueIndex"`
	// Password is the PHC encoded argon2id hash.
	Password  string      `gorm:"not null"`
	Profile   UserProfile `gorm:"type:text;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is free-form JSON.
type Profile map[string]interface{}

// AppSetting is stored as JSON on the application.
type AppSetting struct {
	BaseSetting BaseSetting `json:"base_setting"`
	OIDCSetting OIDCSetting `json:"oidc_setting"`
}

type BaseSetting struct {
	// Endpoint is the application's base URL. Redirect URIs must share its
	// origin.
	Endpoint string `json:"endpoint"`
}

// OIDCSetting lifetimes are in seconds.
type OIDCSetting struct {
	AccessTokenExpireIn   uint64 `json:"access_token_expire_in"`
	IDTokenExpireIn       uint64 `json:"id_token_expire_in"`
	RefreshTokenExpireIn  uint64 `json:"refresh_token_expire_in"`
	AuthorizeCodeExpireIn uint64 `json:"authorize_code_expire_in"`
}

const DefaultEndpoint = "http://localhost:3000"

func DefaultAppSetting() AppSetting {
	return AppSetting{
		BaseSetting: BaseSetting{Endpoint: DefaultEndpoint},
		OIDCSetting: OIDCSetting{
			AccessTokenExpireIn:   604800,
			IDTokenExpireIn:       604800,
			RefreshTokenExpireIn:  1209600,
			AuthorizeCodeExpireIn: 600,
		},
	}
}

// Models lists every model, in migration order.
func Models() []interface{} {
	return []interface{}{&Domain{}, &Application{}, &User{}}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
