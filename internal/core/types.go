// Package core provides the business logic for record import operations.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/docimport/internal/store"
)

// Mode selects how mapped rows are written.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
	ModeUpsert Mode = "upsert"
)

// Modes lists the accepted import modes.
var Modes = []Mode{ModeCreate, ModeUpdate, ModeUpsert}

// ParseMode converts a wire value to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Modes {
		if m == valid {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid import mode %q", s)
}

// FieldMapping connects a source column to a collection field.
type FieldMapping struct {
	CSVField        string `json:"csvField"`
	CollectionField string `json:"collectionField"`
}

// ImportSettings controls one import run.
type ImportSettings struct {
	Mode          Mode           `json:"mode"`
	CompareField  string         `json:"compareField,omitempty"`
	Locale        string         `json:"locale,omitempty"`
	FieldMappings []FieldMapping `json:"fieldMappings"`
}

// Row is one source record keyed by source column name.
type Row map[string]any

// MappedRecord is a row rewritten to collection field names with coerced
// values.
type MappedRecord map[string]any

// Action is what happened to a record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Outcome is the result of writing one record.
type Outcome struct {
	Action Action
	ID     string
}

// RecordDetail describes one written record for debugging clients.
type RecordDetail struct {
	ID     string       `json:"id"`
	Action Action       `json:"action"`
	Data   MappedRecord `json:"data"`
}

// ImportResult is the outcome of a whole run. Success reports that the run
// completed; individual row failures are listed in Errors.
type ImportResult struct {
	Success bool           `json:"success"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Errors  []string       `json:"errors"`
	Message string         `json:"message"`
	Details []RecordDetail `json:"details,omitempty"`
}

// Request is a submitted import.
type Request struct {
	Collection string         `json:"collection"`
	Data       []Row          `json:"data"`
	Settings   ImportSettings `json:"settings"`
}

// identityField is the record id key shared with the store.
const identityField = store.IDField
