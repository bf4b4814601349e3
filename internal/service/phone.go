package service

import (
	"regexp"
	"strings"
)

const countryCode = "55"

var nonDigit = regexp.MustCompile(`[^\d]`)

// NormalizePhone normalizes a phone number to 55 + area code + number.
// Returns "" when the number cannot be a valid phone.
func NormalizePhone(phone string) string {
	// Remove all non-digit characters
	phone = nonDigit.ReplaceAllString(phone, "")

	// Remove trunk prefix zeros
	phone = strings.TrimLeft(phone, "0")

	if len(phone) < 10 || len(phone) > 13 {
		return ""
	}

	// Area code + number without country code
	if len(phone) == 10 || len(phone) == 11 {
		return countryCode + phone
	}

	return phone
}

// PhoneVariants returns the normalized phone plus its Brazilian mobile
// counterpart with or without the ninth digit. WhatsApp ids for older
// accounts omit it, while customers usually type it.
func PhoneVariants(phone string) []string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil
	}
	variants := []string{normalized}
	if !strings.HasPrefix(normalized, countryCode) {
		return variants
	}

	local := normalized[len(countryCode)+2:]
	areaPrefix := normalized[:len(countryCode)+2]
	switch {
	case len(normalized) == 13 && local[0] == '9':
		variants = append(variants, areaPrefix+local[1:])
	case len(normalized) == 12 && local[0] >= '6':
		variants = append(variants, areaPrefix+"9"+local)
	}
	return variants
}
