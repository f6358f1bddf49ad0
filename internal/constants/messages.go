package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	// Common messages
	MsgInvalidRequestBody = "Invalid request body"
	MsgInternalError      = "An internal error occurred"
	MsgUnauthorized       = "Unauthorized"
	MsgRateLimited        = "Too many requests, slow down"

	// Shortener-specific messages
	MsgInvalidURL       = "Invalid URL (must be http or https)"
	MsgLinkNotFound     = "Link not found"
	MsgDomainNotFound   = "Domain not found"
	MsgAddressTaken     = "This address is already taken"
	MsgBanned           = "This content has been banned"
	MsgBannedTarget     = "The target host is not allowed"
	MsgPasswordRequired = "A password is required to access this link"
	MsgPasswordMismatch = "Password is not correct"
)
