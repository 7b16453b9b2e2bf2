package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// CredentialField describes one entry of an adapter's credential bundle
type CredentialField struct {
	Key       string
	Required  bool
	Pattern   string
	MinLength int
	MaxLength int
}

// CredentialSchema is implemented by adapters that publish their bundle shape
type CredentialSchema interface {
	CredentialFields() []CredentialField
}

// ValidateCredentials checks a decrypted bundle against the field definitions
func ValidateCredentials(providerName string, creds Credentials, fields []CredentialField) error {
	for _, field := range fields {
		value := creds.Get(field.Key)
		if value == "" {
			if field.Required {
				return NewError(KindValidation, "MISSING_CREDENTIAL",
					fmt.Sprintf("%s: required credential '%s' is missing", providerName, field.Key))
			}
			continue
		}

		if field.Pattern != "" {
			matched, err := regexp.MatchString(field.Pattern, value)
			if err != nil {
				return Wrap(KindInternal, err, fmt.Sprintf("%s: bad pattern for '%s'", providerName, field.Key))
			}
			if !matched {
				return NewError(KindValidation, "INVALID_CREDENTIAL",
					fmt.Sprintf("%s: credential '%s' has invalid format", providerName, field.Key))
			}
		}

		if field.MinLength > 0 && len(value) < field.MinLength {
			return NewError(KindValidation, "INVALID_CREDENTIAL",
				fmt.Sprintf("%s: credential '%s' must be at least %d characters", providerName, field.Key, field.MinLength))
		}
		if field.MaxLength > 0 && len(value) > field.MaxLength {
			return NewError(KindValidation, "INVALID_CREDENTIAL",
				fmt.Sprintf("%s: credential '%s' must be at most %d characters", providerName, field.Key, field.MaxLength))
		}
	}
	return nil
}

// Required is shorthand for a list of mandatory keys
func Required(keys ...string) []CredentialField {
	fields := make([]CredentialField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, CredentialField{Key: strings.TrimSpace(k), Required: true})
	}
	return fields
}
