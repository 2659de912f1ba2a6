// Package link recognizes TikTok video links.
package link

import "regexp"

// Patterns are anchored only at the start, so trailing query or path is accepted.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?tiktok\.com/@[^/]+/video/\d+`),
	regexp.MustCompile(`^https?://(?:vm|vt)\.tiktok\.com/[A-Za-z0-9]+`),
	regexp.MustCompile(`^https?://(?:www\.)?tiktok\.com/t/[A-Za-z0-9]+`),
}

// IsSupported reports whether s is a video link the bot can download.
// String is matched as is, without trimming or following redirects.
func IsSupported(s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
