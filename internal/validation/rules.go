// Package validation holds the field-level rules for organization and
// member forms. Every validator returns nil or an *apperr.ValidationError.
package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
)

// Field names used as keys in error maps.
const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldTaxID         = "taxId"
	FieldCitizenshipID = "citizenshipId"
	FieldAddress       = "address"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldRole          = "role"
)

const (
	maxTaxIDLen       = 14
	maxCitizenshipLen = 20
	phoneDigits       = 10
)

var (
	orgNameRe     = regexp.MustCompile(`^[\p{L} ]+$`)
	personNameRe  = regexp.MustCompile(`^[\p{L} '.\-]+$`)
	emailRe       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	taxIDCreateRe = regexp.MustCompile(`^[A-Z0-9]+$`)
	digitsRe      = regexp.MustCompile(`^[0-9]+$`)
	citizenshipRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

func invalid(field, msg string) error {
	return &apperr.ValidationError{Field: field, Message: msg}
}

// OrganizationName allows letters and spaces only.
func OrganizationName(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid(FieldName, "Organization name is required")
	}
	if !orgNameRe.MatchString(v) {
		return invalid(FieldName, "Organization name can only contain letters and spaces")
	}
	return nil
}

// PersonName allows letters, spaces, apostrophes, hyphens and periods.
func PersonName(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid(FieldName, "Name is required")
	}
	if !personNameRe.MatchString(v) {
		return invalid(FieldName, "Name can only contain letters, spaces, apostrophes, hyphens and periods")
	}
	return nil
}

func Email(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid(FieldEmail, "Email is required")
	}
	if !emailRe.MatchString(v) {
		return invalid(FieldEmail, "Please enter a valid email address")
	}
	return nil
}

// Phone requires exactly ten digits once non-digits are stripped.
func Phone(v string) error {
	if len(DigitsOnly(v)) != phoneDigits {
		return invalid(FieldPhone, "Phone number must be exactly 10 digits")
	}
	return nil
}

// TaxIDCreate is the rule used when an organization or owner is onboarded:
// uppercase letters and digits, at most 14 characters.
func TaxIDCreate(v string) error {
	if v == "" {
		return invalid(FieldTaxID, "Tax ID is required")
	}
	if len(v) > maxTaxIDLen {
		return invalid(FieldTaxID, "Tax ID cannot exceed 14 characters")
	}
	if !taxIDCreateRe.MatchString(v) {
		return invalid(FieldTaxID, "Tax ID can only contain uppercase letters and numbers")
	}
	return nil
}

// TaxIDEdit is the rule used by the organization edit form: digits only,
// at most 14 characters.
func TaxIDEdit(v string) error {
	if v == "" {
		return invalid(FieldTaxID, "Tax ID is required")
	}
	if len(v) > maxTaxIDLen {
		return invalid(FieldTaxID, "Tax ID cannot exceed 14 digits")
	}
	if !digitsRe.MatchString(v) {
		return invalid(FieldTaxID, "Tax ID can only contain numbers")
	}
	return nil
}

func CitizenshipID(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid(FieldCitizenshipID, "Citizenship ID is required")
	}
	if len(v) > maxCitizenshipLen {
		return invalid(FieldCitizenshipID, "Citizenship ID cannot exceed 20 characters")
	}
	if !citizenshipRe.MatchString(v) {
		return invalid(FieldCitizenshipID, "Citizenship ID can only contain letters, numbers and hyphens")
	}
	return nil
}

func Address(v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(FieldAddress, "Address is required")
	}
	return nil
}

// Latitude and Longitude only require a finite number; real-world bounds
// are deliberately not enforced.
func Latitude(v string) error {
	return coordinate(FieldLatitude, "Latitude", v)
}

func Longitude(v string) error {
	return coordinate(FieldLongitude, "Longitude", v)
}

func coordinate(field, label, v string) error {
	if _, err := ParseCoordinate(v); err != nil {
		return invalid(field, label+" must be a valid number")
	}
	return nil
}

// ParseCoordinate parses a finite float.
func ParseCoordinate(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}

// ============================================
// Formatters
// ============================================

// DigitsOnly strips every non-digit rune.
func DigitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatTaxIDCreate uppercases and drops anything that is not A-Z or 0-9.
func FormatTaxIDCreate(v string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(v) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatTaxIDEdit keeps digits only.
func FormatTaxIDEdit(v string) string {
	return DigitsOnly(v)
}

// NormalizeEmail is the comparison key for email uniqueness.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimFunc(v, unicode.IsSpace))
}
