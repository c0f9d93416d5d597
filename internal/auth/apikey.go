// Package auth provides a simple API key check for the websocket endpoint.
package auth

// APIKeyAuth provides a simple API key authentication
type APIKeyAuth struct {
	validKeys map[string]struct{}

	// open is true when no keys were configured; everything is accepted.
	open bool
}

// NewAPIKeyAuth creates a new API key authenticator. With no keys
// configured, every request is accepted (local development).
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	validKeys := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys[key] = struct{}{}
		}
	}

	return &APIKeyAuth{
		validKeys: validKeys,
		open:      len(validKeys) == 0,
	}
}

// AddKey adds a new valid API key
func (a *APIKeyAuth) AddKey(key string) {
	a.validKeys[key] = struct{}{}
	a.open = false
}

// RemoveKey removes a valid API key
func (a *APIKeyAuth) RemoveKey(key string) {
	delete(a.validKeys, key)
}

// IsValidKey checks if a key is valid
func (a *APIKeyAuth) IsValidKey(key string) bool {
	if a.open {
		return true
	}

	_, valid := a.validKeys[key]
	return valid
}
