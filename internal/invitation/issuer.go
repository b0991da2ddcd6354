// Package invitation issues visitor invitation tokens and drives their
// redemption against a Store.
package invitation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-set/v3"
	"github.com/mozillazg/go-unidecode"
	"github.com/sethvargo/go-password/password"
)

const (
	// SuffixLength is the length of the random part of a token.
	SuffixLength = 16
	// suffixDigits is how many of the suffix characters are digits, the
	// rest are lowercase letters. go-password fixes the count.
	suffixDigits = 4

	maxPrefixLength = 24
	// MaxVisitorNameLength is counted in runes.
	MaxVisitorNameLength = 100
	fallbackPrefix  = "visitante"

	day = 24 * time.Hour
)

var (
	allowedValidityDays = set.From([]int{1, 2, 3})
)

// Issued is the result of Issuer.Issue, ready to be persisted.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

type Issuer struct {
	generator password.PasswordGenerator
}

func NewIssuer() (*Issuer, error) {
	g, err := password.NewGenerator(&password.GeneratorInput{
		LowerLetters: password.LowerLetters,
		Digits:       password.Digits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}

	return &Issuer{generator: g}, nil
}

// Issue mints a token for visitorName valid for validityDays from now.
// It never touches storage.
func (i *Issuer) Issue(visitorName string, validityDays int, now time.Time) (*Issued, error) {
	name := strings.TrimSpace(visitorName)
	if name == "" {
		return nil, fmt.Errorf("%w: visitor name is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxVisitorNameLength {
		return nil, fmt.Errorf("%w: visitor name is longer than %d characters", ErrInvalidInput, MaxVisitorNameLength)
	}

	if !ValidValidityDays(validityDays) {
		return nil, fmt.Errorf("%w: validity days must be 1, 2 or 3, got %d", ErrInvalidInput, validityDays)
	}

	suffix, err := i.generator.Generate(SuffixLength, suffixDigits, 0, true, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token suffix: %w", err)
	}

	return &Issued{
		Token:     TokenPrefix(visitorName) + "-" + suffix,
		ExpiresAt: ExpiresAt(now, validityDays),
	}, nil
}

func ValidValidityDays(days int) bool {
	return allowedValidityDays.Contains(days)
}

// ExpiresAt is an exact offset of validityDays*24h, no calendar rounding.
func ExpiresAt(now time.Time, validityDays int) time.Time {
	return now.Add(time.Duration(validityDays) * day)
}

// TokenPrefix is the cosmetic, URL safe part of a token derived from the
// visitor name.
func TokenPrefix(visitorName string) string {
	ascii := strings.ToLower(unidecode.Unidecode(visitorName))

	b := strings.Builder{}
	for _, r := range ascii {
		if b.Len() >= maxPrefixLength {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return fallbackPrefix
	}
	return b.String()
}
