// Package auth issues and validates the HMAC-signed JWT access tokens that
// guard the HTTP API. The token subject is the owner id every request is
// filed under.
package auth
