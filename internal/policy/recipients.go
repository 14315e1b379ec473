package policy

import (
	"regexp"
	"strings"

	"github.com/postern-ai/postern/internal/config"
)

var (
	localPart  = regexp.MustCompile(`^[a-z0-9._%+-]+$`)
	domainPart = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
)

// NormalizeAddress lowercases and validates an email address, returning
// the normalized form and its domain. Addresses with spaces, more or
// fewer than one '@', or malformed local/domain parts are rejected. The
// single-'@' rule stops victim@good.com@attacker.com shapes from
// reaching the domain check.
func NormalizeAddress(raw string) (addr, domain string, ok bool) {
	addr = strings.ToLower(strings.TrimSpace(raw))
	if addr == "" || strings.ContainsAny(addr, " \t") {
		return "", "", false
	}
	if strings.Count(addr, "@") != 1 {
		return "", "", false
	}
	local, dom, _ := strings.Cut(addr, "@")
	if !localPart.MatchString(local) || !domainPart.MatchString(dom) {
		return "", "", false
	}
	return addr, dom, true
}

// AllowedRecipient decides whether mail may be sent to the candidate
// address. Malformed addresses are always rejected. With both allowlists
// empty the decision fails closed.
func AllowedRecipient(raw string, pol config.OutboundPolicy) bool {
	addr, domain, ok := NormalizeAddress(raw)
	if !ok {
		return false
	}
	if pol.AllowAllRecipients {
		return true
	}
	if len(pol.RecipientAllowlist) == 0 && len(pol.DomainAllowlist) == 0 {
		return false
	}
	for _, entry := range pol.RecipientAllowlist {
		if strings.ToLower(strings.TrimSpace(entry)) == addr {
			return true
		}
	}
	for _, entry := range pol.DomainAllowlist {
		if strings.ToLower(strings.TrimSpace(entry)) == domain {
			return true
		}
	}
	return false
}
