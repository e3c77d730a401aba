// Package policy holds content rules applied to candidate documents before
// they reach a model.
package policy

import "regexp"

const (
	minPhoneDigits = 10
	minCardDigits  = 13
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?(?:linkedin\.com/in|github\.com)/[A-Za-z0-9_\-./]+`)

	// Employment spans such as "2015-2020" or "(2018 - 2021)".
	yearRangePattern = regexp.MustCompile(`^\(?\s*(?:19|20)\d{2}\s*[-–]\s*(?:19|20)\d{2}\s*\)?$`)
)

// RedactPII masks contact details a resume usually carries: email, profile
// links, card and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = urlPattern.ReplaceAllString(out, "[REDACTED_PROFILE]")
	changed = changed || next != out
	out = next

	// Cards before phones, or a card number reads as a phone.
	next = cardPattern.ReplaceAllStringFunc(out, func(m string) string {
		if !looksLikeCard(m) {
			return m
		}
		return "[REDACTED_CARD]"
	})
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllStringFunc(out, func(m string) string {
		if !looksLikePhone(m) {
			return m
		}
		return "[REDACTED_PHONE]"
	})
	changed = changed || next != out
	out = next

	return out, changed
}

func looksLikePhone(m string) bool {
	if yearRangePattern.MatchString(m) {
		return false
	}
	return len(digitsOf(m)) >= minPhoneDigits
}

// looksLikeCard accepts digit runs that pass the Luhn checksum.
func looksLikeCard(m string) bool {
	digits := digitsOf(m)
	if len(digits) < minCardDigits {
		return false
	}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func digitsOf(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return out
}
