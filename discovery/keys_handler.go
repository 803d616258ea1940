package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
)

// KeySource is used to retrieve the public keys this provider is signing with
type KeySource interface {
	// PublicKeys should return the current signing key set
	PublicKeys(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// KeysHandler serves the JWKS endpoint from a KeySource.
type KeysHandler struct {
	ks       KeySource
	cacheFor time.Duration
	now      func() time.Time

	currKeys   *jose.JSONWebKeySet
	currKeysMu sync.Mutex

	lastKeysUpdate time.Time
}

// NewKeysHandler returns a KeysHandler serving the keys from s. Lookups are
// cached for cacheFor, which is also advertised to clients via Cache-Control.
func NewKeysHandler(s KeySource, cacheFor time.Duration) *KeysHandler {
	return &KeysHandler{
		ks:       s,
		cacheFor: cacheFor,
		now:      time.Now,
	}
}

func (h *KeysHandler) keys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	h.currKeysMu.Lock()
	defer h.currKeysMu.Unlock()

	if h.currKeys == nil || !h.now().Before(h.lastKeysUpdate.Add(h.cacheFor)) {
		ks, err := h.ks.PublicKeys(ctx)
		if err != nil {
			return nil, err
		}

		h.currKeys = ks
		h.lastKeysUpdate = h.now()
	}
	return h.currKeys, nil
}

func (h *KeysHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ks, err := h.keys(req.Context())
	if err != nil {
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/jwk-set+json")
	if h.cacheFor > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cacheFor.Seconds())))
	}

	if err := json.NewEncoder(w).Encode(ks); err != nil {
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}
}
