package discovery

import (
	"encoding/json"
	"net/http"
)

var _ http.Handler = (*ConfigurationHandler)(nil)

// ConfigurationHandler serves the provider metadata. The document is encoded
// once, when the handler is created.
type ConfigurationHandler struct {
	md   *ProviderMetadata
	body []byte
}

// ConfigurationHandlerOpt configures a ConfigurationHandler.
type ConfigurationHandlerOpt func(h *ConfigurationHandler)

// WithCoreDefaults fills in the code response type, public subjects and ES256
// signed ID tokens, where they are not otherwise set. Grant types are left to
// the caller; the token endpoint may support none.
func WithCoreDefaults() ConfigurationHandlerOpt {
	return func(h *ConfigurationHandler) {
		if len(h.md.ResponseTypesSupported) == 0 {
			h.md.ResponseTypesSupported = []string{"code"}
		}

		if len(h.md.SubjectTypesSupported) == 0 {
			h.md.SubjectTypesSupported = []string{"public"}
		}

		if len(h.md.IDTokenSigningAlgValuesSupported) == 0 {
			h.md.IDTokenSigningAlgValuesSupported = []string{"ES256"}
		}
	}
}

// NewConfigurationHandler applies opts to metadata, validates the result and
// returns a handler serving it.
func NewConfigurationHandler(metadata *ProviderMetadata, opts ...ConfigurationHandlerOpt) (*ConfigurationHandler, error) {
	h := &ConfigurationHandler{
		md: metadata,
	}

	for _, o := range opts {
		o(h)
	}

	if err := h.md.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(h.md)
	if err != nil {
		return nil, err
	}
	h.body = body

	return h, nil
}

// Metadata returns the served document.
func (h *ConfigurationHandler) Metadata() *ProviderMetadata {
	return h.md
}

func (h *ConfigurationHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.body)
}
