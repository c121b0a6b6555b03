package domain

import dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"

// Choice is the kind of user-data processing a citizen requested.
type Choice string

const (
	// ChoiceDownload asks for an export of the citizen's data.
	ChoiceDownload Choice = "DOWNLOAD"
	// ChoiceDelete asks for erasure of the citizen's data.
	ChoiceDelete Choice = "DELETE"
)

var validChoices = map[Choice]bool{
	ChoiceDownload: true,
	ChoiceDelete:   true,
}

// ParseChoice constructs a Choice from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseChoice(s string) (Choice, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "choice cannot be empty")
	}
	c := Choice(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid choice")
	}
	return c, nil
}

func (c Choice) IsValid() bool {
	return validChoices[c]
}

func (c Choice) String() string { return string(c) }
