package domain

import (
	"regexp"
	"strings"

	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

// FiscalCode identifies a citizen. Invariant: sixteen uppercase alphanumeric
// characters in the national format.
//
// Usage: construct via ParseFiscalCode at trust boundaries; direct casting
// bypasses validation.
type FiscalCode string

var fiscalCodePattern = regexp.MustCompile(
	`^[A-Z]{6}\d{2}[A-Z]\d{2}[A-Z]\d{3}[A-Z]$`)

// ParseFiscalCode constructs a FiscalCode from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or malformed.
func ParseFiscalCode(s string) (FiscalCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fiscal code cannot be empty")
	}
	if !fiscalCodePattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid fiscal code")
	}
	return FiscalCode(s), nil
}

func (f FiscalCode) IsValid() bool {
	return fiscalCodePattern.MatchString(string(f))
}

func (f FiscalCode) String() string { return string(f) }

// ServiceID identifies a service published on the platform.
type ServiceID string

// ParseServiceID constructs a ServiceID from external input.
func ParseServiceID(s string) (ServiceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "service id cannot be empty")
	}
	return ServiceID(s), nil
}

func (s ServiceID) String() string { return string(s) }

// ProcessingID is the composite identifier of one user-data processing
// request: "<fiscalCode>-<choice>". It doubles as the workflow instance id,
// so retries and recovery scans converge on the same logical operation.
type ProcessingID string

// MakeProcessingID derives the deterministic processing id from record
// fields. Same inputs always yield the same output.
func MakeProcessingID(fiscalCode FiscalCode, choice Choice) ProcessingID {
	return ProcessingID(string(fiscalCode) + "-" + string(choice))
}

func (p ProcessingID) String() string { return string(p) }
