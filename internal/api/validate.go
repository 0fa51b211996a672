package api

import (
	"regexp"
	"unicode/utf8"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// maxNameLen is the maximum length for name and company fields.
const maxNameLen = 200

// maxShortStringLen is the maximum length for short identifiers
// (usernames, extensions).
const maxShortStringLen = 40

// maxPasswordLen is the maximum length for passwords and SIP secrets.
const maxPasswordLen = 256

// maxNotesLen is the maximum length for free-text notes fields.
const maxNotesLen = 4000

// phoneRe validates dialable numbers: optional leading +, then digits,
// 2-20 total.
var phoneRe = regexp.MustCompile(`^\+?\d{2,20}$`)

// usernameRe validates login names: letters, digits, dot, dash,
// underscore, 2-40 chars.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._\-]{2,40}$`)

// extensionRe validates SIP extension numbers: digits only, 1-20 chars.
var extensionRe = regexp.MustCompile(`^\d{1,20}$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validatePhoneNumber checks a dialable phone number.
func validatePhoneNumber(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !phoneRe.MatchString(value) {
		return field + " must be digits with an optional leading + (max 20)"
	}
	return ""
}

// validateUsername checks a login name.
func validateUsername(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !usernameRe.MatchString(value) {
		return field + " must be 2-40 letters, digits, dots, dashes or underscores"
	}
	return ""
}

// validateExtensionNumber checks a SIP extension is digits only.
// Empty extensions are allowed (operator without a softphone account).
func validateExtensionNumber(field, value string) string {
	if value == "" {
		return ""
	}
	if !extensionRe.MatchString(value) {
		return field + " must contain only digits (max 20)"
	}
	return ""
}

// validateRole checks an account role.
func validateRole(field, value string) string {
	switch value {
	case models.RoleAgent, models.RoleSupervisor, models.RoleAdmin:
		return ""
	}
	return field + " must be one of agent, supervisor, admin"
}

// validLeadStatuses are the accepted lead pipeline states.
var validLeadStatuses = map[string]bool{
	"new":       true,
	"contacted": true,
	"callback":  true,
	"closed":    true,
	"dead":      true,
}

// validateLeadStatus checks a lead pipeline state. Empty means "new".
func validateLeadStatus(field, value string) string {
	if value == "" {
		return ""
	}
	if !validLeadStatuses[value] {
		return field + " must be one of new, contacted, callback, closed, dead"
	}
	return ""
}
