// Package pgconst holds PostgreSQL naming limits shared by the schema
// bootstrapper and the maintenance commands.
package pgconst

import (
	"regexp"
	"strings"
)

// MaxIdentifierLength is the maximum length of a PostgreSQL identifier (NAMEDATALEN - 1).
const MaxIdentifierLength = 63

var unquotedIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

// IsValidIdentifier reports whether name can be used as an unquoted identifier.
func IsValidIdentifier(name string) bool {
	if len(name) == 0 || len(name) > MaxIdentifierLength {
		return false
	}
	return unquotedIdentifier.MatchString(name)
}

// FoldIdentifier returns name as PostgreSQL stores an unquoted identifier in
// the catalog, so USER_SCHEMA becomes user_schema.
func FoldIdentifier(name string) string {
	return strings.ToLower(name)
}
