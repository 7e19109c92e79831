package service

import "strings"

// mailboxFolding lists providers that deliver several spellings of a local part to one mailbox.
var mailboxFolding = map[string]struct {
	domain       string
	dropDots     bool
	dropSubAddrs bool
}{
	"gmail.com":      {domain: "gmail.com", dropDots: true, dropSubAddrs: true},
	"googlemail.com": {domain: "gmail.com", dropDots: true, dropSubAddrs: true},
}

// CanonicalizeEmail returns the key members are unique on, and under which reset codes are stored.
// Addresses that reach the same mailbox share a key, so "John.Doe+promo@googlemail.com"
// and "johndoe@gmail.com" cannot sign up twice.
func CanonicalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]

	rule, ok := mailboxFolding[domain]
	if !ok {
		return email
	}
	if rule.dropSubAddrs {
		if plus := strings.IndexByte(local, '+'); plus != -1 {
			local = local[:plus]
		}
	}
	if rule.dropDots {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + rule.domain
}
