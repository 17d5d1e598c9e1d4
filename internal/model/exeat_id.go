package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// MaxExeatSequence is the largest sequence that fits the 5-digit id field.
const MaxExeatSequence = 99999

var (
	exeatIDPattern       = regexp.MustCompile(`^EX-([A-Z0-9]+)-([0-9]{4})-([0-9]{5})$`)
	institutionCodeRegex = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// ValidInstitutionCode reports whether code can appear in an exeat id.
func ValidInstitutionCode(code string) bool {
	return institutionCodeRegex.MatchString(code)
}

// FormatExeatID renders EX-<INSTITUTION>-<YYYY>-<NNNNN>, e.g. EX-MTU-2025-00047.
func FormatExeatID(institution string, year int, seq int64) (string, error) {
	if !ValidInstitutionCode(institution) {
		return "", fmt.Errorf("institution code %q must be upper-case letters and digits", institution)
	}
	if seq < 1 || seq > MaxExeatSequence {
		return "", fmt.Errorf("exeat sequence %d outside 1..%d", seq, MaxExeatSequence)
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("exeat year %d is not four digits", year)
	}
	return fmt.Sprintf("EX-%s-%04d-%05d", institution, year, seq), nil
}

// ParseExeatID splits an exeat id into its parts.
func ParseExeatID(id string) (institution string, year int, seq int64, ok bool) {
	m := exeatIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", 0, 0, false
	}
	year, _ = strconv.Atoi(m[2])
	seq, _ = strconv.ParseInt(m[3], 10, 64)
	return m[1], year, seq, true
}

// SequenceKey names the counter that allocates ids for one institution and year.
func SequenceKey(institution string, year int) string {
	return fmt.Sprintf("exeat:%s:%04d", institution, year)
}
