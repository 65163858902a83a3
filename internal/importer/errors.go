package importer

// errors.go maps low-level error text to a fixed set of user-facing
// categories. The job status boundary only ever exposes the classified
// message; raw driver or parser errors stay in the logs.

import (
	"errors"
	"strings"
)

// Category is a user-facing failure class for a terminal job error.
type Category string

const (
	CatConnectivity Category = "connectivity"
	CatFormat       Category = "format"
	CatSize         Category = "size"
	CatPermission   Category = "permission"
	CatDuplicateKey Category = "duplicate-key"
	CatEncoding     Category = "encoding"
	CatGeneric      Category = "generic"
)

// UserMessage pairs a category with the message shown to users.
type UserMessage struct {
	Category Category
	Message  string
}

// errorPattern maps a technical error substring (matched case-insensitively)
// to its user message. The first matching pattern wins, so more specific
// patterns sit before general ones.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Duplicate keys (before the connectivity patterns: a constraint error
	// can mention "connection" in its detail text)
	{"duplicate key", UserMessage{CatDuplicateKey, "A record with this SKU already exists"}},
	{"unique constraint", UserMessage{CatDuplicateKey, "A record with this SKU already exists"}},
	{"violates unique", UserMessage{CatDuplicateKey, "A record with this SKU already exists"}},

	// Connectivity
	{"connection refused", UserMessage{CatConnectivity, "Unable to reach the database. Please try again in a few moments"}},
	{"connection reset", UserMessage{CatConnectivity, "The database connection was interrupted. Please try again"}},
	{"broken pipe", UserMessage{CatConnectivity, "The database connection was interrupted. Please try again"}},
	{"deadlock", UserMessage{CatConnectivity, "The database was busy with conflicting operations. Please try again"}},
	{"timeout", UserMessage{CatConnectivity, "The operation timed out. Try a smaller file or try again later"}},
	{"context deadline exceeded", UserMessage{CatConnectivity, "The operation timed out. Try a smaller file or try again later"}},
	{"context canceled", UserMessage{CatConnectivity, "The import was cancelled before it finished"}},

	// File format
	{"missing required column", UserMessage{CatFormat, "The file is missing required columns"}},
	{"no header row", UserMessage{CatFormat, "The file is empty or has no header row"}},
	{"invalid csv", UserMessage{CatFormat, "The file is not a valid CSV"}},
	{"parse error", UserMessage{CatFormat, "The file is not a valid CSV"}},
	{"wrong number of fields", UserMessage{CatFormat, "The file is not a valid CSV"}},

	// Size
	{"file too large", UserMessage{CatSize, "The file exceeds the maximum allowed size"}},
	{"request body too large", UserMessage{CatSize, "The file exceeds the maximum allowed size"}},

	// Permission
	{"permission denied", UserMessage{CatPermission, "You do not have permission to perform this import"}},
	{"access denied", UserMessage{CatPermission, "You do not have permission to perform this import"}},
	{"authentication failed", UserMessage{CatPermission, "You do not have permission to perform this import"}},

	// Encoding
	{"invalid utf-8", UserMessage{CatEncoding, "The file contains invalid characters. Save it as UTF-8 and retry"}},
	{"encoding error", UserMessage{CatEncoding, "The file contains invalid characters. Save it as UTF-8 and retry"}},
}

// genericMessage is the fallback when no pattern matches. The original
// technical error should be in the logs when users report this one.
var genericMessage = UserMessage{CatGeneric, "An unexpected error occurred. Please try again or contact support"}

// Classify converts a technical error to its user-facing message.
// A *FormatError is always a format failure and keeps its column detail,
// since missing-column lists are safe and useful to show.
func Classify(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var fe *FormatError
	if errors.As(err, &fe) {
		return UserMessage{CatFormat, fe.Error()}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return genericMessage
}
