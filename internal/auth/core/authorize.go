package core

import (
	"net/http"
	"net/url"
	"strings"
)

const ResponseTypeCode = "code"

// Client is the relying party an authorization request is addressed to.
type Client struct {
	ID string
	// Origin holds the scheme and host every redirect URI must use.
	Origin *url.URL
}

// AuthRequest is a validated OpenID Connect authentication request. It is
// kept in the user's session while they log in.
//
// https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type AuthRequest struct {
	ClientID     string   `json:"client_id"`
	RedirectURI  string   `json:"redirect_uri"`
	ResponseType string   `json:"response_type"`
	Scopes       []string `json:"scopes"`
	State        string   `json:"state,omitempty"`
	ResponseMode string   `json:"response_mode,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	Prompt       []string `json:"prompt,omitempty"`
}

// HasScope reports whether scope was requested.
func (a *AuthRequest) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ParseAuthRequest processes an authentication request for client, from
// either the query (GET) or a form body (POST). Problems with the client or
// its redirect URI are returned as an *HTTPError, as the user must not be
// sent to an unverified location. Anything else is an *AuthError. Either
// should be passed to the user via WriteError.
//
// https://tools.ietf.org/html/rfc6749#section-4.1.1
func ParseAuthRequest(req *http.Request, client Client) (*AuthRequest, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return nil, &HTTPError{Code: http.StatusBadRequest, Message: "method must be POST or GET"}
	}

	if err := req.ParseForm(); err != nil {
		return nil, &HTTPError{Code: http.StatusBadRequest, Message: "failed to parse request", Cause: err}
	}

	cid := req.FormValue("client_id")
	ruri := req.FormValue("redirect_uri")

	if cid == "" {
		return nil, &HTTPError{Code: http.StatusBadRequest, Message: "client_id must be specified"}
	}
	if cid != client.ID {
		return nil, &HTTPError{Code: http.StatusBadRequest, Message: "unknown client_id", CauseMsg: "client_id " + cid + " does not match " + client.ID}
	}
	if err := checkRedirect(ruri, client.Origin); err != nil {
		return nil, err
	}

	ar := &AuthRequest{
		ClientID:     cid,
		RedirectURI:  ruri,
		ResponseType: req.FormValue("response_type"),
		Scopes:       fields(req.FormValue("scope")),
		State:        req.FormValue("state"),
		ResponseMode: req.FormValue("response_mode"),
		Nonce:        req.FormValue("nonce"),
		Prompt:       fields(req.FormValue("prompt")),
	}

	authErr := func(code AuthErrorCode, desc string) error {
		return &AuthError{
			State:       ar.State,
			Code:        code,
			Description: desc,
			RedirectURI: ruri,
		}
	}

	switch ar.ResponseType {
	case ResponseTypeCode:
	case "":
		return nil, authErr(AuthErrorCodeInvalidRequest, "response_type must be specified")
	default:
		return nil, authErr(AuthErrorCodeUnsupportedResponseType, `response_type must be "code"`)
	}

	if !ar.HasScope("openid") {
		return nil, authErr(AuthErrorCodeInvalidScope, `scope must include "openid"`)
	}

	switch ar.ResponseMode {
	case "", "query":
	default:
		return nil, authErr(AuthErrorCodeInvalidRequest, `response_mode must be "query"`)
	}

	for _, p := range ar.Prompt {
		switch p {
		case "none":
			if len(ar.Prompt) > 1 {
				return nil, authErr(AuthErrorCodeInvalidRequest, `prompt "none" must not be combined with other values`)
			}
			// Logging in always takes user interaction.
			return nil, authErr(AuthErrorCodeLoginRequired, "the user must log in")
		case "login", "consent", "select_account":
		default:
			return nil, authErr(AuthErrorCodeInvalidRequest, "unknown prompt value "+p)
		}
	}

	return ar, nil
}

func checkRedirect(ruri string, origin *url.URL) error {
	if ruri == "" {
		return &HTTPError{Code: http.StatusBadRequest, Message: "redirect_uri must be specified"}
	}
	u, err := url.Parse(ruri)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &HTTPError{Code: http.StatusBadRequest, Message: "redirect_uri must be an absolute URL", Cause: err}
	}
	if u.Fragment != "" {
		return &HTTPError{Code: http.StatusBadRequest, Message: "redirect_uri must not have a fragment"}
	}
	if origin == nil || !strings.EqualFold(u.Scheme, origin.Scheme) || !strings.EqualFold(u.Host, origin.Host) {
		return &HTTPError{Code: http.StatusBadRequest, Message: "redirect_uri is not registered for this client", CauseMsg: "redirect_uri " + ruri + " outside of the client origin"}
	}
	return nil
}

// fields splits a space separated parameter, leaving absent ones nil.
func fields(s string) []string {
	if f := strings.Fields(s); len(f) > 0 {
		return f
	}
	return nil
}
