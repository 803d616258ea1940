package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testClaims struct {
	Subject string
}

func TestBearerToken(t *testing.T) {
	for _, tc := range []struct {
		Header string
		Want   string
		OK     bool
	}{
		{Header: "Bearer abc", Want: "abc", OK: true},
		{Header: "bearer  abc ", Want: "abc", OK: true},
		{Header: "Basic abc"},
		{Header: "Bearer "},
		{},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.Header != "" {
			req.Header.Set("Authorization", tc.Header)
		}
		got, ok := BearerToken(req)
		if got != tc.Want || ok != tc.OK {
			t.Errorf("%q: want (%q, %v), got (%q, %v)", tc.Header, tc.Want, tc.OK, got, ok)
		}
	}
}

func TestBearer(t *testing.T) {
	b := &Bearer[*testClaims]{
		Verify: func(r *http.Request, token string) (*testClaims, error) {
			if token != "good" {
				return nil, errors.New("bad token")
			}
			return &testClaims{Subject: "u1"}, nil
		},
	}
	h := b.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext[*testClaims](r.Context())
		if !ok {
			t.Error("want claims in context")
			return
		}
		_, _ = w.Write([]byte(c.Subject))
	}))

	for _, tc := range []struct {
		Name          string
		Header        string
		WantCode      int
		WantBody      string
		WantChallenge string
	}{
		{Name: "valid", Header: "Bearer good", WantCode: http.StatusOK, WantBody: "u1"},
		{Name: "missing", WantCode: http.StatusUnauthorized, WantChallenge: "Bearer"},
		{Name: "invalid", Header: "Bearer bad", WantCode: http.StatusUnauthorized, WantChallenge: `Bearer error="invalid_token"`},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.Header != "" {
				req.Header.Set("Authorization", tc.Header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.WantCode {
				t.Fatalf("want code %d, got %d", tc.WantCode, rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tc.WantChallenge {
				t.Errorf("want challenge %q, got %q", tc.WantChallenge, got)
			}
			if tc.WantBody != "" && rec.Body.String() != tc.WantBody {
				t.Errorf("want body %q, got %q", tc.WantBody, rec.Body.String())
			}
		})
	}
}

func TestBearerOnError(t *testing.T) {
	var got error
	b := &Bearer[string]{
		Verify: func(*http.Request, string) (string, error) { return "", nil },
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	}
	rec := httptest.NewRecorder()
	b.Wrap(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !errors.Is(got, ErrNoToken) {
		t.Errorf("want ErrNoToken, got %v", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("want custom error response, got %d", rec.Code)
	}
}
