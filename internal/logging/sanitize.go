// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package logging

import (
	"fmt"
	"strings"
)

// maxLoggedValueLen caps client-supplied strings in log fields.
const maxLoggedValueLen = 256

// SanitizeValue escapes control characters in client-supplied strings
// (device IDs, paths, origins) so they cannot forge log lines, and caps
// their length.
func SanitizeValue(s string) string {
	s = Truncate(s, maxLoggedValueLen)
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SanitizeToken masks a credential, showing only first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Truncate shortens a string to at most maxLen characters.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
