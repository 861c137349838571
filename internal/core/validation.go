package core

// validation.go checks a submitted import before any row is processed.
//
// Structural problems come back as one *RequestValidationError listing every
// problem found, so API clients can fix a payload in one round trip.

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/JonMunkholm/docimport/internal/schema"
)

// MissingFieldsProblem is reported when collection or data is absent.
const MissingFieldsProblem = "Missing required fields: collection, data"

// Validate implements validation.Validatable.
func (m FieldMapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CSVField, validation.Required),
		validation.Field(&m.CollectionField, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (s ImportSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Mode,
			validation.Required,
			validation.In(ModeCreate, ModeUpdate, ModeUpsert).Error("must be one of create, update, upsert"),
		),
		validation.Field(&s.FieldMappings),
	)
}

// ValidateRequest normalizes req in place and checks it against the schemas
// known to provider. It returns the resolved collection.
func ValidateRequest(req *Request, provider schema.Provider) (schema.Collection, error) {
	req.Collection = strings.TrimSpace(req.Collection)
	req.Settings.Mode = Mode(strings.ToLower(strings.TrimSpace(string(req.Settings.Mode))))

	err := validation.Errors{
		"collection": validation.Validate(req.Collection, validation.Required),
		"data":       validation.Validate(req.Data, validation.NotNil),
	}.Filter()
	if err != nil {
		return schema.Collection{}, &RequestValidationError{Problems: []string{MissingFieldsProblem}}
	}

	var problems []string
	if err := req.Settings.Validate(); err != nil {
		problems = append(problems, flattenValidation("settings", err)...)
	}

	coll, ok := provider.Get(req.Collection)
	if !ok {
		problems = append(problems, fmt.Sprintf("%s %q", ErrUnknownCollection, req.Collection))
	}

	if len(problems) > 0 {
		return schema.Collection{}, &RequestValidationError{Problems: problems}
	}
	return coll, nil
}

// flattenValidation turns nested ozzo errors into sorted "path: message"
// lines.
func flattenValidation(prefix string, err error) []string {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []string{prefix + ": " + err.Error()}
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if errs[k] == nil {
			continue
		}
		out = append(out, flattenValidation(prefix+"."+k, errs[k])...)
	}
	return out
}
