package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// WriteError handles the passed error appropriately. After calling this, the
// HTTP sequence should be considered complete.
//
// For errors in the authorization endpoint, the user will be redirected with
// the code appended to the redirect URL.
// https://tools.ietf.org/html/rfc6749#section-4.1.2.1
//
// For unknown errors, an InternalServerError response will be sent
func WriteError(w http.ResponseWriter, req *http.Request, err error) error {
	switch err := err.(type) {
	case *AuthError:
		redir, perr := url.Parse(err.RedirectURI)
		if perr != nil {
			return fmt.Errorf("failed to parse redirect URI %q: %w", err.RedirectURI, perr)
		}
		v := redir.Query()
		if err.State != "" {
			v.Add("state", err.State)
		}
		v.Add("error", string(err.Code))
		if err.Description != "" {
			v.Add("error_description", err.Description)
		}
		redir.RawQuery = v.Encode()
		http.Redirect(w, req, redir.String(), http.StatusFound)

	case *HTTPError:
		m := err.Message
		if m == "" {
			m = "Internal error"
		}
		if err.WWWAuthenticate != "" {
			w.Header().Add("WWW-Authenticate", err.WWWAuthenticate)
		}
		http.Error(w, m, err.Code)

	case *TokenError:
		w.Header().Add("Content-Type", "application/json;charset=UTF-8")
		// https://tools.ietf.org/html/rfc6749#section-5.2
		if err.Code == TokenErrorCodeInvalidClient {
			if err.WWWAuthenticate != "" {
				w.Header().Add("WWW-Authenticate", err.WWWAuthenticate)
			}
			w.WriteHeader(http.StatusUnauthorized)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}
		if err := json.NewEncoder(w).Encode(err); err != nil {
			return fmt.Errorf("failed to write token error json body: %w", err)
		}

	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}

	return nil
}

// HTTPError is shown to the user directly, without redirecting.
type HTTPError struct {
	Code int
	// Message is presented to the user, so this should be considered.
	// if it's not set, "Internal error" will be used.
	Message string
	// cause message is presented in the Error() output, so it should be used
	// for internal text
	CauseMsg string
	Cause    error
	// WWWAuthenticate is sent with 401 responses of bearer protected
	// resources.
	WWWAuthenticate string
}

func (h *HTTPError) Error() string {
	m := h.CauseMsg
	if m == "" {
		m = h.Message
	}
	str := fmt.Sprintf("http error %d: %s", h.Code, m)
	if h.Cause != nil {
		str = fmt.Sprintf("%s (cause: %s)", str, h.Cause.Error())
	}
	return str
}

func (h *HTTPError) Unwrap() error {
	return h.Cause
}

type AuthErrorCode string

// https://tools.ietf.org/html/rfc6749#section-4.1.2.1
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
const (
	AuthErrorCodeInvalidRequest          AuthErrorCode = "invalid_request"
	AuthErrorCodeUnsupportedResponseType AuthErrorCode = "unsupported_response_type"
	AuthErrorCodeInvalidScope            AuthErrorCode = "invalid_scope"
	AuthErrorCodeServerError             AuthErrorCode = "server_error"
	AuthErrorCodeLoginRequired           AuthErrorCode = "login_required"
)

// AuthError is returned to the client by redirecting to its redirect URI.
// Only create one once the redirect URI has been checked against the client.
type AuthError struct {
	State       string
	Code        AuthErrorCode
	Description string
	RedirectURI string
	Cause       error
}

func (a *AuthError) Error() string {
	str := fmt.Sprintf("%s error in authorization request: %s", a.Code, a.Description)
	if a.Cause != nil {
		str = fmt.Sprintf("%s (cause: %s)", str, a.Cause.Error())
	}
	return str
}

func (a *AuthError) Unwrap() error {
	return a.Cause
}

type TokenErrorCode string

// https://tools.ietf.org/html/rfc6749#section-5.2
const (
	TokenErrorCodeInvalidRequest       TokenErrorCode = "invalid_request"
	TokenErrorCodeInvalidClient        TokenErrorCode = "invalid_client"
	TokenErrorCodeUnsupportedGrantType TokenErrorCode = "unsupported_grant_type"
)

type TokenError struct {
	Code            TokenErrorCode `json:"error,omitempty"`
	Description     string         `json:"error_description,omitempty"`
	ErrorURI        string         `json:"error_uri,omitempty"`
	Cause           error          `json:"-"`
	WWWAuthenticate string         `json:"-"`
}

func (t *TokenError) Error() string {
	return fmt.Sprintf("%s error in token request: %s", t.Code, t.Description)
}

func (t *TokenError) Unwrap() error {
	return t.Cause
}
