package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/go-cmp/cmp"

	"github.com/insptop/inspirer-foundation/keys"
)

type countingKeysource struct {
	KeySource
	calls int
	err   error
}

func (c *countingKeysource) PublicKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.KeySource.PublicKeys(ctx)
}

func validMetadata() *ProviderMetadata {
	return &ProviderMetadata{
		Issuer:                "https://auth.example.com/app/1/oidc",
		AuthorizationEndpoint: "https://auth.example.com/app/1/oidc/auth",
		TokenEndpoint:         "https://auth.example.com/app/1/oidc/token",
		JWKSURI:               "https://auth.example.com/app/1/oidc/.well-known/jwks.json",
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Mutate  func(md *ProviderMetadata)
		WantErr string
	}{
		{
			Name:   "valid",
			Mutate: func(md *ProviderMetadata) {},
		},
		{
			Name:    "missing issuer",
			Mutate:  func(md *ProviderMetadata) { md.Issuer = "" },
			WantErr: "Issuer is required",
		},
		{
			Name:    "relative issuer",
			Mutate:  func(md *ProviderMetadata) { md.Issuer = "/app/1/oidc" },
			WantErr: "Issuer must be an absolute URL",
		},
		{
			Name:    "issuer with query",
			Mutate:  func(md *ProviderMetadata) { md.Issuer += "?a=b" },
			WantErr: "Issuer must not have a query or fragment",
		},
		{
			Name:    "missing jwks",
			Mutate:  func(md *ProviderMetadata) { md.JWKSURI = "" },
			WantErr: "JWKSURI is required",
		},
		{
			Name:    "missing token endpoint",
			Mutate:  func(md *ProviderMetadata) { md.TokenEndpoint = "" },
			WantErr: "TokenEndpoint is required",
		},
		{
			Name: "implicit only without token endpoint",
			Mutate: func(md *ProviderMetadata) {
				md.TokenEndpoint = ""
				md.GrantTypesSupported = []string{"implicit"}
			},
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			md := validMetadata()
			tc.Mutate(md)
			_, err := NewConfigurationHandler(md, WithCoreDefaults())
			if tc.WantErr == "" {
				if err != nil {
					t.Fatalf("want no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.WantErr) {
				t.Fatalf("want error containing %q, got %v", tc.WantErr, err)
			}
		})
	}
}

func TestValidateWithoutDefaults(t *testing.T) {
	_, err := NewConfigurationHandler(validMetadata())
	if err == nil {
		t.Fatal("want error for metadata without response, subject and alg values")
	}
	for _, want := range []string{"ResponseTypes", "Subject Identifier", "IDTokenSigningAlg"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("want error to mention %s, got %v", want, err)
		}
	}
}

func TestConfigurationHandler(t *testing.T) {
	md := validMetadata()
	md.ScopesSupported = []string{"openid", "email", "profile"}
	h, err := NewConfigurationHandler(md, WithCoreDefaults())
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("want json content type, got %s", ct)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}

	want := map[string]interface{}{
		"issuer":                                "https://auth.example.com/app/1/oidc",
		"authorization_endpoint":                "https://auth.example.com/app/1/oidc/auth",
		"token_endpoint":                        "https://auth.example.com/app/1/oidc/token",
		"jwks_uri":                              "https://auth.example.com/app/1/oidc/.well-known/jwks.json",
		"scopes_supported":                      []interface{}{"openid", "email", "profile"},
		"response_types_supported":              []interface{}{"code"},
		"subject_types_supported":               []interface{}{"public"},
		"id_token_signing_alg_values_supported": []interface{}{"ES256"},
		"claims_parameter_supported":            false,
		"request_parameter_supported":           false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected metadata (-want +got):\n%s", diff)
	}
}

func TestKeysHandler(t *testing.T) {
	kp, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	src := &countingKeysource{KeySource: kp}

	now := time.Now()
	h := NewKeysHandler(src, time.Minute)
	h.now = func() time.Time { return now }

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
		return rec
	}

	rec := get()
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/jwk-set+json" {
		t.Errorf("want jwk-set content type, got %s", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("want cache control for a minute, got %s", cc)
	}

	var ks jose.JSONWebKeySet
	if err := json.Unmarshal(rec.Body.Bytes(), &ks); err != nil {
		t.Fatal(err)
	}
	if len(ks.Keys) != 1 || ks.Keys[0].KeyID != kp.KeyID() {
		t.Fatalf("want the single key %s, got %+v", kp.KeyID(), ks.Keys)
	}
	if !ks.Keys[0].IsPublic() {
		t.Error("want only public key material")
	}

	get()
	if src.calls != 1 {
		t.Errorf("want cached keys within cacheFor, got %d lookups", src.calls)
	}

	now = now.Add(2 * time.Minute)
	get()
	if src.calls != 2 {
		t.Errorf("want a refresh after cacheFor, got %d lookups", src.calls)
	}

	src.err = errors.New("boom")
	now = now.Add(2 * time.Minute)
	if rec := get(); rec.Code != http.StatusInternalServerError {
		t.Errorf("want status 500 on key source error, got %d", rec.Code)
	}
}
