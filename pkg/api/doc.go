// Package api exposes the bridge's HTTP surface: authentication flow
// endpoints backed by the orchestrator, the SAML login redirect and
// assertion consumer, and the federated hosted-UI login.
package api
