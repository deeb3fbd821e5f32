// Package validators implements the token verification strategies that can
// establish a session from an inbound request: a bearer JWT checked against
// the pool's published signing keys, and a SAML assertion checked against a
// configured IdP certificate. The Registry runs every enabled validator on
// each request and reconciles any verified identity into a local user.
//
// Verification failures are deliberately quiet. A malformed or unverifiable
// credential means the request proceeds unauthenticated; it is never an
// error to the request pipeline.
package validators
