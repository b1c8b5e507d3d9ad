package email

import "strings"

// placeholderDomain is the synthetic domain assigned to employees onboarded
// without an email address.
const placeholderDomain = "@placeholder.local"

// placeholderPrefix is the legacy marker older tenant imports used for the
// same purpose.
const placeholderPrefix = "noemail+"

// RedactEmail masks an email address for safe logging. The local part keeps
// its first character, e.g. "john@gmail.com" becomes "j***@gmail.com".
// Strings without an "@" are masked entirely so malformed input never leaks
// into logs.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, found := strings.Cut(email, "@")
	if !found {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}

	return string(local[0]) + "***@" + domain
}

// IsPlaceholderAddress reports whether the address is a synthetic placeholder
// that must never be handed to a delivery provider.
func IsPlaceholderAddress(email string) bool {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return true
	}
	return strings.HasSuffix(addr, placeholderDomain) || strings.HasPrefix(addr, placeholderPrefix)
}
