package password

import (
	"errors"
	"strings"
	"unicode"
)

// Violation identifies one failed policy rule.
type Violation uint8

const (
	// ViolationTooShort: candidate is below the minimum length.
	ViolationTooShort Violation = iota
	// ViolationMissingUppercase: candidate has no uppercase letter.
	ViolationMissingUppercase
	// ViolationMissingDigit: candidate has no digit.
	ViolationMissingDigit
	// ViolationMissingSpecial: candidate has no character from the special set.
	ViolationMissingSpecial
	// ViolationRepeatRun: candidate contains a run of identical consecutive
	// characters longer than permitted.
	ViolationRepeatRun
	// ViolationContainsUsername: candidate contains the username as a
	// case-insensitive substring.
	ViolationContainsUsername
	// ViolationSameAsCurrent: candidate equals the current password.
	ViolationSameAsCurrent
	// ViolationInHistory: candidate equals one of the recent historical
	// passwords.
	ViolationInHistory
)

func (v Violation) String() string {
	switch v {
	case ViolationTooShort:
		return "too_short"
	case ViolationMissingUppercase:
		return "missing_uppercase"
	case ViolationMissingDigit:
		return "missing_digit"
	case ViolationMissingSpecial:
		return "missing_special"
	case ViolationRepeatRun:
		return "repeat_run"
	case ViolationContainsUsername:
		return "contains_username"
	case ViolationSameAsCurrent:
		return "same_as_current"
	case ViolationInHistory:
		return "reused_from_history"
	default:
		return "unknown"
	}
}

// VerifyFunc reports whether a plaintext candidate matches an encoded hash.
// [Hasher.Verify] satisfies it.
type VerifyFunc func(candidate, encodedHash string) (bool, error)

// DefaultSpecialChars is the closed set of characters the special-character
// rule accepts.
const DefaultSpecialChars = "!@#$%^&*()-_=+[]{}:;,.?"

// PolicyConfig carries the tunable rule parameters.
type PolicyConfig struct {
	MinLength    int
	MaxRunLength int
	SpecialChars string
	HistoryDepth int
}

// DefaultPolicyConfig returns the standard rule set: 10-byte minimum, runs of
// at most 2, and a 5-deep history.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:    10,
		MaxRunLength: 2,
		SpecialChars: DefaultSpecialChars,
		HistoryDepth: 5,
	}
}

// Policy evaluates candidate passwords. It performs no I/O; hash comparisons
// go through the injected verify function.
type Policy struct {
	config PolicyConfig
	verify VerifyFunc
}

// NewPolicy validates the configuration and returns a ready Policy.
func NewPolicy(cfg PolicyConfig, verify VerifyFunc) (*Policy, error) {
	if cfg.MinLength < 1 {
		return nil, errors.New("policy min length must be >= 1")
	}
	if cfg.MaxRunLength < 1 {
		return nil, errors.New("policy max run length must be >= 1")
	}
	if cfg.SpecialChars == "" {
		return nil, errors.New("policy special character set must not be empty")
	}
	if cfg.HistoryDepth < 0 {
		return nil, errors.New("policy history depth must be >= 0")
	}
	if verify == nil {
		return nil, errors.New("policy verify function is required")
	}
	return &Policy{config: cfg, verify: verify}, nil
}

// Result is the outcome of a policy evaluation. OK is true iff Violations is
// empty.
type Result struct {
	OK         bool
	Violations []Violation
}

// Validate evaluates every rule against the candidate and reports the complete
// violation set. currentHash may be empty for a principal without a password;
// history is newest-first and only the configured depth is consulted. A verify
// error on a stored hash counts as "does not match", so a corrupt record can
// never make a reuse rule pass.
func (p *Policy) Validate(candidate, username, currentHash string, history []string) Result {
	var violations []Violation

	if len(candidate) < p.config.MinLength {
		violations = append(violations, ViolationTooShort)
	}

	var hasUpper, hasDigit bool
	for _, r := range candidate {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasUpper {
		violations = append(violations, ViolationMissingUppercase)
	}
	if !hasDigit {
		violations = append(violations, ViolationMissingDigit)
	}
	if !strings.ContainsAny(candidate, p.config.SpecialChars) {
		violations = append(violations, ViolationMissingSpecial)
	}
	if longestRun(candidate) > p.config.MaxRunLength {
		violations = append(violations, ViolationRepeatRun)
	}
	if username != "" && strings.Contains(strings.ToLower(candidate), strings.ToLower(username)) {
		violations = append(violations, ViolationContainsUsername)
	}
	if currentHash != "" && p.matches(candidate, currentHash) {
		violations = append(violations, ViolationSameAsCurrent)
	}
	if p.inHistory(candidate, history) {
		violations = append(violations, ViolationInHistory)
	}

	return Result{OK: len(violations) == 0, Violations: violations}
}

func (p *Policy) matches(candidate, encodedHash string) bool {
	ok, err := p.verify(candidate, encodedHash)
	return err == nil && ok
}

func (p *Policy) inHistory(candidate string, history []string) bool {
	depth := p.config.HistoryDepth
	if depth > len(history) {
		depth = len(history)
	}
	for _, h := range history[:depth] {
		if h == "" {
			continue
		}
		if p.matches(candidate, h) {
			return true
		}
	}
	return false
}

func longestRun(s string) int {
	var longest, run int
	var prev rune
	for i, r := range s {
		if i == 0 || r != prev {
			run = 1
		} else {
			run++
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}

// PolicyError carries the violation set through the error chain; retrieve it
// with errors.As.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return "password rejected by policy"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "password rejected by policy: " + strings.Join(parts, ", ")
}
