// Package discovery serves the OpenID Connect discovery document and the JWKS
// endpoint of a provider.
//
// https://openid.net/specs/openid-connect-discovery-1_0.html
package discovery

import (
	"fmt"
	"net/url"
	"strings"
)

// ProviderMetadata is the document served at
// <issuer>/.well-known/openid-configuration.
//
// https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
//
// Members the provider does not implement are left out.
type ProviderMetadata struct {
	// Issuer is an https URL with no query or fragment. It must equal the iss
	// claim of ID tokens issued by this provider.
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	// TokenEndpoint is only optional for implicit-only providers.
	TokenEndpoint    string `json:"token_endpoint,omitempty"`
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`
	JWKSURI          string `json:"jwks_uri"`

	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	ResponseModesSupported []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported    []string `json:"grant_types_supported,omitempty"`
	SubjectTypesSupported  []string `json:"subject_types_supported"`

	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	UserinfoSigningAlgValuesSupported []string `json:"userinfo_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	ClaimsSupported               []string `json:"claims_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`

	ServiceDocumentation string `json:"service_documentation,omitempty"`

	// Both default to false when absent, they are always written so relying
	// parties do not need to know that.
	ClaimsParameterSupported  bool `json:"claims_parameter_supported"`
	RequestParameterSupported bool `json:"request_parameter_supported"`
}

// Validate checks that the members required by OpenID Connect Discovery 1.0
// are set.
func (p *ProviderMetadata) Validate() error {
	var errs []string

	aestr := func(val, e string) {
		if val == "" {
			errs = append(errs, e)
		}
	}

	aessl := func(val []string, e string) {
		if len(val) == 0 {
			errs = append(errs, e)
		}
	}

	aestr(p.Issuer, "Issuer is required")
	aestr(p.AuthorizationEndpoint, "AuthorizationEndpoint is required")
	aestr(p.JWKSURI, "JWKSURI is required")
	aessl(p.ResponseTypesSupported, "ResponseTypes supported is required")
	aessl(p.SubjectTypesSupported, "Subject Identifier Types are required")
	aessl(p.IDTokenSigningAlgValuesSupported, "IDTokenSigningAlgValuesSupported are required")

	if p.Issuer != "" {
		u, err := url.Parse(p.Issuer)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("Issuer is not a URL: %v", err))
		case !u.IsAbs() || u.Host == "":
			errs = append(errs, "Issuer must be an absolute URL")
		case u.RawQuery != "" || u.Fragment != "":
			errs = append(errs, "Issuer must not have a query or fragment")
		}
	}

	if p.TokenEndpoint == "" {
		if len(p.GrantTypesSupported) != 1 || p.GrantTypesSupported[0] != "implicit" {
			errs = append(errs, "TokenEndpoint is required when we're not implicit-only")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid provider metadata: %s", strings.Join(errs, ", "))
	}
	return nil
}
