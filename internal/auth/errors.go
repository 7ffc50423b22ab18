package auth

import "errors"

var (
	// ErrConfiguration marks a fatal setup problem: missing provider keys,
	// an unsupported protocol version, or using the factory before Configure.
	ErrConfiguration = errors.New("oauth configuration error")
	// ErrProviderNotFound is returned when no client implementation is
	// registered for a provider id.
	ErrProviderNotFound = errors.New("oauth provider not implemented")
	// ErrProviderConfigMissing is returned when a provider is implemented but
	// has no configuration entry.
	ErrProviderConfigMissing = errors.New("oauth provider not configured")
	// ErrUnauthorized is returned when the provider rejects the sign-in or its
	// response lacks the claims needed to identify the user.
	ErrUnauthorized = errors.New("unauthorized")
)
