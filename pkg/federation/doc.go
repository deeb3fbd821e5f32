// Package federation implements the hosted-UI login flow: the browser is
// redirected to the user pool's OIDC authorization endpoint, and the
// callback exchanges the code, verifies the ID token, and reconciles the
// claims into a local user through the same path the validators use.
package federation
