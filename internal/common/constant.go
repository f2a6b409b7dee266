package common

const (
	// AuthorizationHeaderName carries "Bearer <access token>" on inbound requests.
	AuthorizationHeaderName = "Authorization"

	// RequestIDHeaderName is echoed back on every response.
	RequestIDHeaderName = "X-Request-ID"

	// LanguageHeaderName selects the message catalog of the response envelope.
	LanguageHeaderName = "lang"

	// BearerScheme is the token_type returned to clients.
	BearerScheme = "bearer"
)
