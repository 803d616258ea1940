// Package keys manages the P-256 key pair the service signs ID tokens with,
// and exposes it as PEM and as a JSON Web Key Set.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	jose "github.com/go-jose/go-jose/v3"
)

// Alg is the JWS algorithm used with a KeyPair.
const Alg = jose.ES256

// KeyPair is an ECDSA P-256 signing key. It implements the signer surface
// used by the discovery keys handler and the token issuer.
type KeyPair struct {
	private *ecdsa.PrivateKey
	keyID   string
	signer  jose.Signer
}

// Generate creates a new random key pair.
func Generate() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return New(priv)
}

// New wraps an existing P-256 private key. The key ID is the RFC 7638
// thumbprint of the public key.
func New(priv *ecdsa.PrivateKey) (*KeyPair, error) {
	if priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", priv.Curve.Params().Name)
	}

	tp, err := (&jose.JSONWebKey{Key: priv.Public()}).Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	kid := base64.RawURLEncoding.EncodeToString(tp)

	s, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: Alg,
			Key: &jose.JSONWebKey{
				Algorithm: string(Alg),
				Key:       priv,
				KeyID:     kid,
				Use:       "sig",
			},
		},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return &KeyPair{private: priv, keyID: kid, signer: s}, nil
}

// Load parses a PEM encoded private key, either PKCS#8 ("PRIVATE KEY") or
// SEC 1 ("EC PRIVATE KEY").
func Load(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	var (
		key interface{}
		err error
	)
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: %T", key)
	}
	return New(priv)
}

// LoadFile reads a PEM encoded private key from path.
func LoadFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

// KeyID is the `kid` set on the JWK and on signed tokens.
func (k *KeyPair) KeyID() string {
	return k.keyID
}

// PrivateKeyPEM encodes the private key as PKCS#8.
func (k *KeyPair) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyPEM encodes the public key as PKIX.
func (k *KeyPair) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.private.Public())
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// JWK is the public half as a JSON Web Key.
func (k *KeyPair) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.private.Public(),
		KeyID:     k.keyID,
		Algorithm: string(Alg),
		Use:       "sig",
	}
}

// JWKS is the key set published at the JWKS endpoint.
func (k *KeyPair) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{k.JWK()}}
}

// Signer is the underlying JOSE signer, for use with a JWT builder.
func (k *KeyPair) Signer() jose.Signer {
	return k.signer
}

// PublicKeys returns the public key set this signer is valid for
func (k *KeyPair) PublicKeys(_ context.Context) (*jose.JSONWebKeySet, error) {
	return k.JWKS(), nil
}

// SignerAlg returns the algorithm this signer uses
func (k *KeyPair) SignerAlg(_ context.Context) (jose.SignatureAlgorithm, error) {
	return Alg, nil
}

// Sign the provided data
func (k *KeyPair) Sign(_ context.Context, data []byte) (signed []byte, err error) {
	jws, err := k.signer.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	ser, err := jws.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	return []byte(ser), nil
}

// VerifySignature verifies the signature of the given token against this key
func (k *KeyPair) VerifySignature(_ context.Context, jwt string) (payload []byte, err error) {
	jws, err := jose.ParseSigned(jwt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	var found bool
	for _, sig := range jws.Signatures {
		if sig.Header.KeyID == k.keyID {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("key not found in jwt headers")
	}

	payload, err = jws.Verify(k.private.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to verify JWT: %w", err)
	}

	return payload, nil
}
