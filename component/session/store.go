package session

import (
	"bytes"
	"encoding/base32"
	"encoding/gob"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
)

// browserSessionTTL bounds how long a backend keeps a session whose cookie
// has no Max-Age.
const browserSessionTTL = 24 * time.Hour

// Store is a sessions.Store keeping values in a Backend. The cookie only
// carries the signed, and optionally encrypted, session ID.
type Store struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options

	backend Backend
}

var _ sessions.Store = (*Store)(nil)

// NewStore returns a Store saving to backend. keyPairs are handled as in
// sessions.NewCookieStore.
func NewStore(backend Backend, keyPairs ...[]byte) *Store {
	s := &Store{
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		backend: backend,
	}
	return s
}

// MaxAge sets the cookie Max-Age and the lifetime of signed IDs.
func (s *Store) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, c := range s.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			if age > 0 {
				sc.MaxAge(age)
			}
		}
	}
}

// Get returns the session for name, cached per request.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns a new session, or the existing one if the request carries a
// valid cookie for a live session. An invalid cookie, or a session that cannot
// be loaded, yields a new session without an ID and an error.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		return session, err
	}

	data, err := s.backend.Load(r.Context(), session.ID)
	if IsNotFoundErr(err) {
		// Expired or deleted; start over with a fresh ID.
		session.ID = ""
		return session, nil
	}
	if err != nil {
		// Saving this session must not overwrite the stored one.
		session.ID = ""
		return session, errors.Wrap(err, "failed to load session")
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values); err != nil {
		session.ID = ""
		session.Values = make(map[interface{}]interface{})
		return session, errors.Wrap(err, "failed to decode session")
	}
	session.IsNew = false
	return session, nil
}

// Save persists the session values and writes the ID cookie. A negative
// MaxAge deletes the session.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(r.Context(), session.ID); err != nil {
				return errors.Wrap(err, "failed to delete session")
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		session.ID = id
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return errors.Wrap(err, "failed to encode session")
	}

	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if ttl == 0 {
		ttl = browserSessionTTL
	}
	if err := s.backend.Save(r.Context(), session.ID, buf.Bytes(), ttl); err != nil {
		return errors.Wrap(err, "failed to save session")
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func newID() (string, error) {
	k := securecookie.GenerateRandomKey(32)
	if k == nil {
		return "", errors.New("failed to generate session id")
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(k), "="), nil
}
