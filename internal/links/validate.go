package links

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/models"
)

// Messages shown to the user.
const (
	MsgRequired      = "URL and Name are required"
	MsgURLScheme     = "URL must start with http:// or https://"
	MsgAccessLevel   = "Access level must be one of Restricted, Anyone with link, Public"
	MsgLoadFailed    = "Failed to load links"
	MsgSaveFailed    = "Failed to save link"
	MsgDeleteFailed  = "Failed to delete link"
	ConfirmDeleteMsg = "Are you sure you want to delete this link?"
)

var httpPrefix = regexp.MustCompile(`^http`)

// ValidationError is a rejected form. It wraps apperr.ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

// Validate checks a form and returns the normalized input. An empty access
// level becomes Restricted.
func Validate(in models.LinkInput) (models.LinkInput, error) {
	in.URL = strings.TrimSpace(in.URL)
	in.Name = strings.TrimSpace(in.Name)
	if in.AccessLevel == "" {
		in.AccessLevel = models.AccessRestricted
	}

	if err := (validation.Errors{
		"url":  validation.Validate(in.URL, validation.Required),
		"name": validation.Validate(in.Name, validation.Required),
	}).Filter(); err != nil {
		field := "url"
		if errs, ok := err.(validation.Errors); ok && errs["url"] == nil {
			field = "name"
		}
		return in, &ValidationError{Field: field, Message: MsgRequired}
	}

	if err := validation.Validate(in.URL, validation.Match(httpPrefix)); err != nil {
		return in, &ValidationError{Field: "url", Message: MsgURLScheme}
	}

	levels := make([]any, len(models.AccessLevels))
	for i, l := range models.AccessLevels {
		levels[i] = l
	}
	if err := validation.Validate(in.AccessLevel, validation.In(levels...)); err != nil {
		return in, &ValidationError{Field: "access_level", Message: MsgAccessLevel}
	}
	return in, nil
}
