// Package validation checks names that end up in device commands, API
// paths and event subjects.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const maxIdentifierLen = 63

var (
	// Valid identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Characters the VyOS shell would interpret if a name reached it unquoted
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// ValidateIdentifier validates an object name (router, firewall, address,
// service or fragment).
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > maxIdentifierLen {
		return fmt.Errorf("identifier too long (max %d characters)", maxIdentifierLen)
	}

	for _, char := range dangerousChars {
		if strings.Contains(id, char) {
			return fmt.Errorf("identifier contains dangerous character: %q", char)
		}
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidateSubject validates a NATS subject used for publishing: dot
// separated tokens without wildcards or whitespace.
func ValidateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	for _, token := range strings.Split(subject, ".") {
		if token == "" {
			return fmt.Errorf("invalid subject %q: empty token", subject)
		}
		if token == "*" || token == ">" {
			return fmt.Errorf("invalid subject %q: wildcards cannot be published to", subject)
		}
		if strings.ContainsAny(token, " \t\r\n") {
			return fmt.Errorf("invalid subject %q: contains whitespace", subject)
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from a string (for display purposes)
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
