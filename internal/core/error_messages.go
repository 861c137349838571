package core

// # Error Codes Reference
//
// Errors surfaced outside a run's result (HTTP failures, CLI exits) are mapped
// to a user message with a code that can be quoted to support.
//
//	REQ001 - Invalid import payload
//	REQ002 - Unknown collection
//	IMP001 - Too many concurrent imports
//	IMP002 - Unexpected import failure
//	STO001 - Duplicate id
//	STO002 - Write conflict
//	STO003 - Record not found
//	STO004 - Store unreachable ("connection refused")
//	STO005 - Timeout ("timeout", "deadline exceeded")
//	MED001 - Media URL returned an error status
//	MED002 - Media URL is not an image
//	MED003 - Media file too large ("file too large")
//	ERR000 - Anything else
//
// Typed errors are matched first; plain errors fall back to substring
// patterns on the lowercased message.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/docimport/internal/store"
)

// UserMessage provides user-friendly error information.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

var (
	msgInvalidPayload = UserMessage{
		Message: "Invalid import payload",
		Action:  "Check the collection, data and settings fields",
		Code:    "REQ001",
	}
	msgUnknownCollection = UserMessage{
		Message: "Collection does not exist",
		Action:  "List collections with GET /api/collections",
		Code:    "REQ002",
	}
	msgTooManyImports = UserMessage{
		Message: "Too many imports are running",
		Action:  "Please try again in a few moments",
		Code:    "IMP001",
	}
	msgUnexpected = UserMessage{
		Message: "Internal server error",
		Action:  "Please try again or contact support",
		Code:    "IMP002",
	}
	msgDuplicateID = UserMessage{
		Message: "A record with this id already exists",
		Action:  "Use update or upsert mode, or drop the id mapping",
		Code:    "STO001",
	}
	msgWriteConflict = UserMessage{
		Message: "The store was busy with conflicting writes",
		Action:  "Please try again",
		Code:    "STO002",
	}
	msgNotFound = UserMessage{
		Message: "No matching record was found",
		Action:  "Check the compare field and its values",
		Code:    "STO003",
	}
	msgFetchStatus = UserMessage{
		Message: "A media URL returned an error",
		Action:  "Check the URL is publicly reachable",
		Code:    "MED001",
	}
	msgNotImage = UserMessage{
		Message: "A media URL does not point to an image",
		Action:  "Use direct links to image files",
		Code:    "MED002",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the document store",
			Action:  "Please try again in a few moments",
			Code:    "STO004",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Import fewer rows per request or try again later",
			Code:    "STO005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Import fewer rows per request or try again later",
			Code:    "STO005",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "Media file exceeds the size limit",
			Action:  "Use smaller images",
			Code:    "MED003",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. A nil error maps to
// the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		verr     *RequestValidationError
		notFound *RecordNotFoundError
		status   *FetchStatusError
		notImage *NotImageError
		unexp    *UnexpectedError
	)
	switch {
	case errors.Is(err, ErrUnknownCollection):
		return msgUnknownCollection
	case errors.As(err, &verr):
		for _, p := range verr.Problems {
			if strings.HasPrefix(p, ErrUnknownCollection.Error()) {
				return msgUnknownCollection
			}
		}
		return msgInvalidPayload
	case errors.Is(err, ErrTooManyImports):
		return msgTooManyImports
	case errors.Is(err, store.ErrDuplicateID):
		return msgDuplicateID
	case errors.Is(err, store.ErrWriteConflict):
		return msgWriteConflict
	case errors.Is(err, store.ErrNotFound), errors.As(err, &notFound):
		return msgNotFound
	case errors.As(err, &status):
		return msgFetchStatus
	case errors.As(err, &notImage):
		return msgNotImage
	case errors.As(err, &unexp):
		return msgUnexpected
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
