/*
Package utils provides helper functions for the blog generation backend.
*/
package utils

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	nonSlugChars        = regexp.MustCompile(`[^a-z0-9]+`)
)

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return time.Now().Format("20060102150405") + "-" + RandomString(8)
}

// RandomString returns length random hex characters
func RandomString(length int) string {
	var b strings.Builder
	for b.Len() < length {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:length]
}

// SanitizeFilename strips characters that are not allowed in file names.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "")
}

// Slugify lowercases s and collapses every run of non-alphanumerics into a dash.
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "job"
	}
	return slug
}

// CountWords returns the number of whitespace separated words in s
func CountWords(s string) int {
	return len(strings.Fields(s))
}
