package types

import "strings"

// RedactEmail masks an email address for safe logging by replacing all but
// the first character of the local part with asterisks. For example,
// "jane@hospital.org" becomes "j***@hospital.org".
//
// If the email does not contain an "@" symbol, the entire string is masked.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}

// RedactAddress returns a target address fit for logs. Only mailboxes are
// personal data; channel names and user ids pass through.
func RedactAddress(t TransportKind, address string) string {
	if t == TransportMail {
		return RedactEmail(address)
	}
	return address
}
