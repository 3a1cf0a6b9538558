// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"
)

// MinPasswordScore is the lowest zxcvbn score (0-4) accepted at registration
// and password reset.
const MinPasswordScore = 3

// StrengthResult is the outcome of scoring a candidate password.
type StrengthResult struct {
	// IsValid is true when Score >= MinPasswordScore.
	IsValid bool `json:"isValid"`

	// Score is the zxcvbn strength estimate, 0 (guessable) to 4 (strong).
	Score int `json:"score"`

	// Feedback lists human-readable improvement suggestions. Empty when
	// there is nothing useful to say.
	Feedback []string `json:"feedback"`
}

// StrengthChecker scores password strength using zxcvbn's dictionary- and
// pattern-aware estimator. Scoring never fails; a panic inside the estimator
// would be a bug in the library, not an expected error path.
type StrengthChecker struct{}

// NewStrengthChecker creates a new StrengthChecker.
func NewStrengthChecker() *StrengthChecker {
	return &StrengthChecker{}
}

// Score evaluates the candidate password. userInputs (name, email, ...) are
// penalized as guessable dictionary words.
func (c *StrengthChecker) Score(password string, userInputs ...string) StrengthResult {
	if password == "" {
		return StrengthResult{
			IsValid:  false,
			Score:    0,
			Feedback: []string{"Use a password; it cannot be empty."},
		}
	}

	match := zxcvbn.PasswordStrength(password, userInputs)

	result := StrengthResult{
		Score:    match.Score,
		IsValid:  match.Score >= MinPasswordScore,
		Feedback: []string{},
	}
	if !result.IsValid {
		result.Feedback = feedback(password, userInputs)
	}
	return result
}

// feedback derives improvement suggestions for a rejected password. The Go
// zxcvbn port does not expose the upstream feedback strings, so the obvious
// weaknesses are named here instead.
func feedback(password string, userInputs []string) []string {
	var out []string

	if len(password) < 12 {
		out = append(out, "Use at least 12 characters; length helps more than symbols.")
	}

	var hasLower, hasUpper, hasDigit, hasOther bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasOther = true
		}
	}
	variety := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasOther} {
		if ok {
			variety++
		}
	}
	if variety < 3 {
		out = append(out, "Mix upper and lower case letters, digits, and symbols.")
	}

	lower := strings.ToLower(password)
	for _, input := range userInputs {
		if input == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(input)) {
			out = append(out, "Avoid using your name or email address in the password.")
			break
		}
	}

	if out == nil {
		out = append(out, "Avoid common words and predictable patterns.")
	}
	return out
}
