package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates phone number length is not 10 digits
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")

	// ErrInvalidPrefix indicates phone number doesn't start with a Nepali mobile prefix
	ErrInvalidPrefix = errors.New("phone number must start with 974, 975, 976, 980, 981, 982, 984, 985, 986, 961, 962 or 988")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// operatorByPrefix maps Nepali mobile prefixes to their operator
var operatorByPrefix = map[string]string{
	"984": "Nepal Telecom",
	"985": "Nepal Telecom",
	"986": "Nepal Telecom",
	"974": "Nepal Telecom",
	"975": "Nepal Telecom",
	"976": "Nepal Telecom",
	"980": "Ncell",
	"981": "Ncell",
	"982": "Ncell",
	"961": "Smart Telecom",
	"962": "Smart Telecom",
	"988": "Smart Telecom",
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a Nepali mobile number.
// Accepts 9841234567, 984-123-4567, +977 9841234567 and similar.
// Returns the sanitized 10 digit number.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if phone == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if !v.IsValidPrefix(sanitized) {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and the 977 country code
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	phone = replacer.Replace(phone)

	if strings.HasPrefix(phone, "977") && len(phone) == 13 {
		phone = phone[3:]
	}

	return phone
}

// IsValidPrefix checks if phone number has a valid Nepali mobile prefix
func (v *PhoneValidator) IsValidPrefix(phone string) bool {
	if len(phone) < 3 {
		return false
	}
	_, ok := operatorByPrefix[phone[:3]]
	return ok
}

// Format formats a phone number for display: 98X-XXX-XXXX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s", sanitized[0:3], sanitized[3:6], sanitized[6:10]), nil
}

// GetOperator returns the mobile operator name based on prefix
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return operatorByPrefix[sanitized[:3]], nil
}
