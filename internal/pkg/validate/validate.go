// Package validate holds the form rules shared by the API and the dashboard
// client. Every rule reports field-scoped messages so a form can show them
// next to the offending input.
package validate

import (
	"net"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	xerrors "mnetifi-service/internal/pkg/errors"
)

// FieldErrors maps a field name to its first validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error { return xerrors.ErrValidation }

// Add records msg for field unless the field already has a message.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

// Check records msg when cond is false.
func (fe FieldErrors) Check(cond bool, field, msg string) {
	if !cond {
		fe.Add(field, msg)
	}
}

// Err returns nil when there are no messages.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

var (
	emailRe     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,30}[a-z0-9])$`)
	hostLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	otpRe       = regexp.MustCompile(`^[0-9]{6}$`)
	prefixRe    = regexp.MustCompile(`^[A-Z0-9]*$`)
	kePhoneRe   = regexp.MustCompile(`^254[17][0-9]{8}$`)
)

var reservedSubdomains = map[string]bool{
	"www": true, "api": true, "admin": true, "app": true, "mail": true,
	"portal": true, "superadmin": true, "static": true, "ws": true,
}

func Required(s string) bool { return strings.TrimSpace(s) != "" }

func Email(s string) bool { return emailRe.MatchString(strings.TrimSpace(s)) }

func OTPCode(s string) bool { return otpRe.MatchString(s) }

// Subdomain reports whether s is an allowed tenant subdomain.
func Subdomain(s string) bool {
	return subdomainRe.MatchString(s) && !reservedSubdomains[s]
}

// NormalizePhone turns 07XXXXXXXX, 01XXXXXXXX, +2547XXXXXXXX or 2547XXXXXXXX
// into the 12 digit 254 form used by M-Pesa.
func NormalizePhone(s string) (string, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+")

	switch {
	case len(s) == 10 && strings.HasPrefix(s, "0"):
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}
	if !kePhoneRe.MatchString(s) {
		return "", false
	}
	return s, true
}

func Phone(s string) bool {
	_, ok := NormalizePhone(s)
	return ok
}

// PasswordStrength scores a password from 0 to 5: one point each for
// length >= 8, a lower-case letter, an upper-case letter, a digit and a symbol.
func PasswordStrength(pw string) int {
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	score := 0
	for _, ok := range []bool{len(pw) >= 8, lower, upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return score
}

// MinPasswordScore is the lowest PasswordStrength accepted at registration.
const MinPasswordScore = 3

// Password checks length and strength and returns the message to show, or "".
func Password(pw string) string {
	if len(pw) < 8 {
		return "password must be at least 8 characters"
	}
	if PasswordStrength(pw) < MinPasswordScore {
		return "password is too weak: mix upper and lower case letters, digits and symbols"
	}
	return ""
}

// NormalizePrefix upper-cases a voucher prefix and keeps at most 6 characters.
func NormalizePrefix(p string) string {
	r := []rune(strings.ToUpper(strings.TrimSpace(p)))
	if len(r) > 6 {
		r = r[:6]
	}
	return string(r)
}

// VoucherPrefix reports whether an already normalised prefix is usable.
func VoucherPrefix(p string) bool { return prefixRe.MatchString(p) }

// Hostname accepts a DNS name, optionally led by "*." for walled-garden wildcards.
func Hostname(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "*.")
	if s == "" || len(s) > 253 || !strings.Contains(s, ".") {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if !hostLabelRe.MatchString(label) {
			return false
		}
	}
	return true
}

func MAC(s string) bool {
	_, err := net.ParseMAC(s)
	return err == nil
}

// FutureTime reports whether t is unset or after now.
func FutureTime(t *time.Time, now time.Time) bool {
	return t == nil || t.After(now)
}

func OneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func Length(s string, min, max int) bool {
	n := len([]rune(strings.TrimSpace(s)))
	return n >= min && n <= max
}

var (
	labelSanitizer = regexp.MustCompile(`[^a-z0-9-]`)
	dashRun        = regexp.MustCompile(`-{2,}`)
)

// SuggestSubdomain derives a DNS label from a business name, e.g.
// "Kilimani Wi-Fi & Co." becomes "kilimani-wi-fi-co".
func SuggestSubdomain(businessName string) string {
	label := strings.ToLower(strings.TrimSpace(businessName))
	label = strings.ReplaceAll(label, "_", "-")
	label = strings.ReplaceAll(label, " ", "-")
	label = labelSanitizer.ReplaceAllString(label, "")
	label = dashRun.ReplaceAllString(label, "-")
	label = strings.Trim(label, "-")
	if len(label) > 32 {
		label = strings.Trim(label[:32], "-")
	}
	return label
}
