// Package service implements the auth service's business logic on top of
// the database.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/password"
	"github.com/insptop/inspirer-foundation/response"
)

type CredentialType string

const (
	CredentialUsername CredentialType = "username"
	CredentialEmail    CredentialType = "email"
)

// Credential identifies a user logging in. On the wire it is tagged by type:
//
//	{"type": "username", "payload": {"username": "jane", "password": "..."}}
//	{"type": "email", "payload": {"email": "jane@example.com", "password": "..."}}
type Credential struct {
	Type     CredentialType
	Username string
	Email    string
	Password string
}

type credentialPayload struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type taggedCredential struct {
	Type    CredentialType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	var tc taggedCredential
	if err := json.Unmarshal(data, &tc); err != nil {
		return err
	}
	var p credentialPayload
	if len(tc.Payload) > 0 {
		if err := json.Unmarshal(tc.Payload, &p); err != nil {
			return errors.Wrap(err, "invalid credential payload")
		}
	}

	switch tc.Type {
	case CredentialUsername:
		if p.Username == "" {
			return errors.New("username credential requires a username")
		}
	case CredentialEmail:
		if p.Email == "" {
			return errors.New("email credential requires an email")
		}
	default:
		return fmt.Errorf("unknown credential type %q", tc.Type)
	}

	*c = Credential{Type: tc.Type, Username: p.Username, Email: p.Email, Password: p.Password}
	return nil
}

func (c Credential) MarshalJSON() ([]byte, error) {
	p, err := json.Marshal(credentialPayload{Username: c.Username, Email: c.Email, Password: c.Password})
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedCredential{Type: c.Type, Payload: p})
}

// Users looks up users.
type Users struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewUsers(db *gorm.DB, logger logrus.FieldLogger) *Users {
	return &Users{db: db, logger: logger}
}

// ErrUserNotExists is returned, as a 404, when no user matches a credential.
var ErrUserNotExists = response.Custom(http.StatusNotFound, response.ErrorDetail{Error: "User not exists"})

// FindByCredential returns the user the credential identifies, if the
// password matches.
func (s *Users) FindByCredential(ctx context.Context, c Credential) (*entity.User, error) {
	q := s.db.WithContext(ctx)
	switch c.Type {
	case CredentialUsername:
		s.logger.WithField("username", c.Username).Debug("login use username credential")
		q = q.Where("username = ?", c.Username)
	case CredentialEmail:
		s.logger.WithField("email", c.Email).Debug("login use email credential")
		q = q.Where("email = ?", c.Email)
	default:
		return nil, response.BadRequest(fmt.Errorf("unknown credential type %q", c.Type))
	}

	var u entity.User
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotExists
		}
		return nil, response.Internal(errors.Wrap(err, "failed to query user"))
	}

	if err := password.Verify(c.Password, u.Password); err != nil {
		if errors.Cause(err) != password.ErrMismatch {
			s.logger.WithError(err).WithField("user", u.UUID).Warn("stored password hash is invalid")
		}
		return nil, response.Unauthorized("User not exists or password error")
	}
	return &u, nil
}

// Find returns the user with the given UUID.
func (s *Users) Find(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var u entity.User
	if err := s.db.WithContext(ctx).Where("uuid = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NotFound()
		}
		return nil, response.Internal(errors.Wrap(err, "failed to query user"))
	}
	return &u, nil
}

// List returns every user.
func (s *Users) List(ctx context.Context) ([]entity.User, error) {
	var us []entity.User
	return us, s.db.WithContext(ctx).Order("id").Find(&us).Error
}
