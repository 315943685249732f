// Package patterns detects suspicious digit sequences in mobile and card
// numbers: all-identical digits, strictly sequential runs (ascending or
// descending, wrapping mod 10), and a single 2-digit pair repeated across
// the full length. These patterns show up constantly in throwaway numbers
// typed by fraud scripts and almost never in real ones.
package patterns

import "strings"

// Fixed weights for pattern hits in the checkout policy.
const (
	MobilePatternPoints = 20
	CardPatternPoints   = 20
)

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SuspiciousDigits reports whether a digit string shows a suspicious
// pattern. Inputs shorter than 4 digits are never suspicious. Odd-length
// inputs skip the repeating-pair check but still run the identical and
// sequential checks.
func SuspiciousDigits(s string) bool {
	s = Digits(s)
	if len(s) < 4 {
		return false
	}

	if allIdentical(s) {
		return true
	}
	if sequential(s, 1) || sequential(s, -1) {
		return true
	}
	return repeatingPair(s)
}

func allIdentical(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// sequential checks for a strict run with the given step, wrapping mod 10
// (so "8901" and "2109" both count).
func sequential(s string, step int) bool {
	for i := 1; i < len(s); i++ {
		prev := int(s[i-1] - '0')
		cur := int(s[i] - '0')
		if cur != (prev+step+10)%10 {
			return false
		}
	}
	return true
}

// repeatingPair checks whether the first two digits repeat across the full
// (even) length, e.g. "23232323".
func repeatingPair(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	pair := s[:2]
	for i := 2; i < len(s); i += 2 {
		if s[i:i+2] != pair {
			return false
		}
	}
	return true
}

// SuspiciousMobile reports whether mobile is a 10-digit number with a
// suspicious pattern. Numbers that are not exactly 10 digits are ignored
// rather than flagged; length validation belongs to the caller.
func SuspiciousMobile(mobile string) bool {
	s := Digits(mobile)
	if len(s) != 10 {
		return false
	}
	return SuspiciousDigits(s)
}

// SuspiciousCard reports whether card is a plausible card number
// (13-19 digits) with a suspicious pattern.
func SuspiciousCard(card string) bool {
	s := Digits(card)
	if len(s) < 13 || len(s) > 19 {
		return false
	}
	return SuspiciousDigits(s)
}
