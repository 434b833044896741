package compliance

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidFamily is returned when a family key is empty after normalization.
var ErrInvalidFamily = errors.New("invalid vaccine family")

// Family groups vaccine subtypes that share one physical dose timeline.
type Family string

// Well-known families and subtypes.
const (
	FamilyTetanus     Family = "TETANOS"
	FamilyHepatitisB  Family = "HEPATITIS_B"
	FamilyHepatitisA  Family = "HEPATITIS_A"
	FamilyYellowFever Family = "FIEBRE_AMARILLA"
	FamilyInfluenza   Family = "INFLUENZA"

	SubtypeTetanus = "TETANOS"
	SubtypeDPT     = "DPT"
	SubtypeDT      = "DT"
	SubtypeTT      = "TT"
)

// tetanusMembers are historically interchangeable names for the tetanus series.
var tetanusMembers = map[string]bool{
	SubtypeTetanus: true,
	SubtypeDPT:     true,
	SubtypeDT:      true,
	SubtypeTT:      true,
}

// NormalizeSubtype upper-cases a label, replaces whitespace runs with "_" and
// strips diacritics, so "Fiebre  amarilla" and "FIEBRE_AMARILLA" compare equal.
func NormalizeSubtype(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(label))
	if err != nil {
		stripped = strings.TrimSpace(label)
	}
	return strings.ToUpper(strings.Join(strings.Fields(stripped), "_"))
}

// FamilyOf maps a subtype label to its family.
func FamilyOf(subtype string) (Family, error) {
	key := NormalizeSubtype(subtype)
	if key == "" {
		return "", ErrInvalidFamily
	}
	if tetanusMembers[key] {
		return FamilyTetanus, nil
	}
	return Family(key), nil
}

// Canonical returns the display name used for mixed timelines of the family.
func (f Family) Canonical() string {
	return string(f)
}
