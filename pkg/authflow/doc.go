// Package authflow drives the multi-step authentication exchange with the
// user pool: primary login, forced password reset, MFA enrollment, token
// refresh, registration and account lifecycle operations.
//
// Every operation returns an AuthResult with exactly one state populated;
// provider failures are converted to the failed state and never panic or
// terminate the process. Nothing here retries: a transient provider failure
// is the caller's to handle.
package authflow
