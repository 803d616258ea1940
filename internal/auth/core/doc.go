// Package core implements the protocol side of the OpenID Connect provider:
// parsing authorization requests and reporting errors the way RFC 6749 and
// OpenID Connect Core require.
package core
