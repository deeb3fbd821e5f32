// Package cognito wraps the AWS Cognito identity provider operations the
// bridge depends on behind typed requests and responses.
//
// Every call crosses the network and is passed the caller's context. The
// adapter performs no retries; transient failures surface immediately as
// ProviderError values carrying the provider's message verbatim.
package cognito
