package chat

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Verdict is the caller-side classification of an assistant reply.
type Verdict struct {
	// OffTopic marks replies about products this desk does not support.
	OffTopic bool `json:"offTopic,omitempty"`
	// SuggestTicket marks replies that should offer a support ticket.
	SuggestTicket bool `json:"suggestTicket,omitempty"`
}

// Classifier decides how the caller should present a reply. It is
// business policy; the orchestrator never consults it.
type Classifier interface {
	Classify(reply string) Verdict
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(reply string) Verdict

func (f ClassifierFunc) Classify(reply string) Verdict {
	return f(reply)
}

// NoopClassifier never flags a reply.
var NoopClassifier = ClassifierFunc(func(string) Verdict { return Verdict{} })

// Policy classifies a reply and may rewrite it for display.
type Policy interface {
	Apply(reply *Reply) Verdict
}

type annotator struct{ c Classifier }

func (a annotator) Apply(reply *Reply) Verdict { return a.c.Classify(reply.Text) }

// Annotate turns a Classifier into a Policy that never rewrites replies.
func Annotate(c Classifier) Policy {
	if c == nil {
		c = NoopClassifier
	}
	return annotator{c: c}
}

// KeywordPolicy flags replies by whole-word, case-insensitive keyword matches.
type KeywordPolicy struct {
	// OffTopicKeywords mark a reply off-topic unless ProductKeyword is present.
	OffTopicKeywords []string
	ProductKeyword   string
	// EscalationKeywords mark a reply as a ticket candidate.
	EscalationKeywords []string
	// RedirectMessage replaces off-topic replies when non-empty.
	RedirectMessage string

	offTopic   []*regexp.Regexp
	escalation []*regexp.Regexp
	product    *regexp.Regexp
}

// NewKeywordPolicy compiles the keyword lists of p.
func NewKeywordPolicy(p KeywordPolicy) *KeywordPolicy {
	p.offTopic = compileKeywords(p.OffTopicKeywords)
	p.escalation = compileKeywords(p.EscalationKeywords)
	if kw := strings.TrimSpace(p.ProductKeyword); kw != "" {
		p.product = keywordPattern(kw)
	}
	return &p
}

func (p *KeywordPolicy) Classify(reply string) Verdict {
	var v Verdict
	if matchesAny(p.offTopic, reply) && (p.product == nil || !p.product.MatchString(reply)) {
		v.OffTopic = true
	}
	if matchesAny(p.escalation, reply) {
		v.SuggestTicket = true
	}
	return v
}

// Apply classifies reply.Text and swaps in the redirect message for
// off-topic replies.
func (p *KeywordPolicy) Apply(reply *Reply) Verdict {
	v := p.Classify(reply.Text)
	if v.OffTopic && p.RedirectMessage != "" {
		reply.Text = p.RedirectMessage
	}
	return v
}

func compileKeywords(keywords []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, keywordPattern(kw))
		}
	}
	return out
}

// keywordPattern anchors kw on word boundaries at the ends that are word
// characters, so "disney+" still matches before a space.
func keywordPattern(kw string) *regexp.Regexp {
	pattern := regexp.QuoteMeta(kw)
	if r, _ := utf8.DecodeRuneInString(kw); isWordRune(r) {
		pattern = `\b` + pattern
	}
	if r, _ := utf8.DecodeLastRuneInString(kw); isWordRune(r) {
		pattern += `\b`
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
