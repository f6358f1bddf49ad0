package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	// Common error codes
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"

	// Shortener-specific codes
	CodeInvalidURL       = "INVALID_URL"
	CodeLinkNotFound     = "LINK_NOT_FOUND"
	CodeDomainNotFound   = "DOMAIN_NOT_FOUND"
	CodeAddressTaken     = "ADDRESS_TAKEN"
	CodeBanned           = "BANNED"
	CodeBannedTarget     = "BANNED_TARGET"
	CodePasswordRequired = "PASSWORD_REQUIRED"
	CodePasswordMismatch = "PASSWORD_MISMATCH"

	// Success codes
	CodeLinkCreated = "LINK_CREATED"
	CodeLinkUpdated = "LINK_UPDATED"
	CodeLinkDeleted = "LINK_DELETED"
	CodeLinkBanned  = "LINK_BANNED"
	CodeStatsFound  = "STATS_FOUND"
	CodeTargetFound = "TARGET_FOUND"
)
