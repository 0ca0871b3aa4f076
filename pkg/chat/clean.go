package chat

import (
	"regexp"
	"strings"
)

var (
	// File-search citations such as 【6:0†Product KB.docx】.
	citationPattern   = regexp.MustCompile(`【\d+:\d+†[^】]+】`)
	codeFencePattern  = regexp.MustCompile("(?s)```.*?```")
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*`)
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
)

// CleanReply turns assistant markdown into plain display text: citation
// markers and fenced code blocks are removed, emphasis and inline code
// markup is unwrapped, and surrounding whitespace is trimmed.
func CleanReply(s string) string {
	s = citationPattern.ReplaceAllString(s, "")
	s = codeFencePattern.ReplaceAllString(s, "")
	// Bold before italic so "**x**" is not read as two italics.
	s = boldPattern.ReplaceAllString(s, "$1")
	s = italicPattern.ReplaceAllString(s, "$1")
	s = inlineCodePattern.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
