// Package redact classifies auth-sensitive email content and strips quoted
// reply context before it reaches the caller.
package redact

import (
	"regexp"
	"strings"
)

// authPatterns is the corpus of phrasings that mark a message as carrying
// an authentication artifact: one-time codes, password resets, sign-in
// approvals, magic links, and device verification.
var authPatterns = []*regexp.Regexp{
	// One-time codes and 2FA.
	regexp.MustCompile(`(?i)\b(verification|security|login|sign[- ]?in|auth(entication)?|one[- ]?time|access|confirmation)\s+code\b`),
	regexp.MustCompile(`(?i)\byour\s+code\s+is\b`),
	regexp.MustCompile(`(?i)\bcode[:\s]+\d{4,8}\b`),
	regexp.MustCompile(`(?i)\b\d{4,8}\s+is\s+your\b`),
	regexp.MustCompile(`(?i)\b(otp|2fa|mfa)\b`),
	regexp.MustCompile(`(?i)\btwo[- ]?factor\b`),
	regexp.MustCompile(`(?i)\bone[- ]?time\s+(password|passcode|pin)\b`),
	regexp.MustCompile(`(?i)\bpass\s?codes?\b`),

	// Password resets and sign-in approvals.
	regexp.MustCompile(`(?i)\b(reset|change)\s+your\s+password\b`),
	regexp.MustCompile(`(?i)\bpassword\s+(reset|change)\b`),
	regexp.MustCompile(`(?i)\b(sign[- ]?in|login)\s+attempt\b`),
	regexp.MustCompile(`(?i)\bnew\s+(sign[- ]?in|login)\b`),
	regexp.MustCompile(`(?i)\bapprove\s+(this\s+)?(sign[- ]?in|login)\b`),
	regexp.MustCompile(`(?i)\bsuspicious\s+(sign[- ]?in|login)\b`),

	// Magic links, email verification, passkeys, device verification.
	regexp.MustCompile(`(?i)\bmagic\s+link\b`),
	regexp.MustCompile(`(?i)\b(verify|confirm)\s+your\s+(email|identity|account|address)\b`),
	regexp.MustCompile(`(?i)\bemail\s+verification\b`),
	regexp.MustCompile(`(?i)\bpasskey\b`),
	regexp.MustCompile(`(?i)\bdevice\s+(verification|confirmation)\b`),
	regexp.MustCompile(`(?i)\bverify\s+this\s+device\b`),
}

// Sensitive reports whether the message carries an authentication artifact.
// Subject, snippet, and body are matched together, case-insensitively.
func Sensitive(subject, snippet, body string) bool {
	content := subject + "\n" + snippet + "\n" + body
	for _, re := range authPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Quoted-reply markers. A line matching any of these ends the latest message.
var (
	attributionLine = regexp.MustCompile(`^On .+ wrote:`)
	headerFragment  = regexp.MustCompile(`^(From|Sent|Subject|To):\s`)
	outlookRule     = regexp.MustCompile(`^-+\s*Original Message\s*-+`)
)

// StripQuoted truncates text at the first line that starts quoted or
// forwarded content, keeping only the latest message.
func StripQuoted(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, ">"),
			attributionLine.MatchString(trimmed),
			headerFragment.MatchString(trimmed),
			outlookRule.MatchString(trimmed),
			strings.HasPrefix(trimmed, "Begin forwarded message:"):
			return strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
	}
	return strings.TrimSpace(text)
}
