package utils

import (
	"regexp"
	"strings"
)

var slugInvalid = regexp.MustCompile("[^a-z0-9_]+")

// Slugify turns a name into an identifier usable as a collection uid or table name.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugInvalid.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
