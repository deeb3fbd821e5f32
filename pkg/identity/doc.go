// Package identity holds the local user model and the reconciliation logic
// that turns a verified external identity into a local user row. Validators
// produce a VerifiedIdentity; the Reconciler finds or creates the matching
// User so downstream authorization always has a local record to point at.
package identity
