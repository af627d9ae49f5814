package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country code
const DefaultPhoneRegion = "IN"

// ErrEmptyPhone is returned when there is nothing to parse
var ErrEmptyPhone = errors.New("empty phone number")

// PhoneComponents represents the parsed components of a phone number
type PhoneComponents struct {
	CountryCode    string `json:"country_code"`
	NationalNumber string `json:"national_number"`
	E164           string `json:"e164"`
}

// ParsePhoneNumber parses a phone number, assuming region when the number
// carries no country code.
func ParsePhoneNumber(phoneString, region string) (*PhoneComponents, error) {
	cleanPhone := strings.TrimSpace(phoneString)
	if cleanPhone == "" {
		return nil, ErrEmptyPhone
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	// spreadsheet exports often drop the leading plus
	if !strings.HasPrefix(cleanPhone, "+") && strings.HasPrefix(cleanPhone, "00") {
		cleanPhone = "+" + strings.TrimPrefix(cleanPhone, "00")
	}

	num, err := phonenumbers.Parse(cleanPhone, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return nil, fmt.Errorf("invalid phone number: %s", phoneString)
	}

	return &PhoneComponents{
		CountryCode:    fmt.Sprintf("%d", num.GetCountryCode()),
		NationalNumber: phonenumbers.GetNationalSignificantNumber(num),
		E164:           phonenumbers.Format(num, phonenumbers.E164),
	}, nil
}

// NormalizePhone returns the E.164 form of a phone number, or "" for blank input
func NormalizePhone(phoneString, region string) (string, error) {
	components, err := ParsePhoneNumber(phoneString, region)
	if errors.Is(err, ErrEmptyPhone) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return components.E164, nil
}
