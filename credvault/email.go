package credvault

import "strings"

const maxEmailLen = 255

// ValidateEmail checks the shape the spec requires: lowercase, at most
// 255 chars, a single '@' between a nonempty local part and a dotted
// domain part. This is a shape check only — it never queries the row
// store to see if the address is taken; that's sessionmgr.register's job.
func ValidateEmail(email string) bool {
	if email == "" || len(email) > maxEmailLen {
		return false
	}
	if email != strings.ToLower(email) {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.IndexByte(email[at+1:], '@') != -1 {
		return false
	}
	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return true
}
