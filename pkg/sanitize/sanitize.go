// Package sanitize cleans free-form agent output so it satisfies the chat
// channel's markup contract: only <b>, <i> and <code> tags plus emoji survive,
// and no markdown heading, emphasis, rule or table syntax is left behind.
//
// The sanitizer is an ordered list of pure rules reduced over the text. It is
// a best-effort filter rather than a markdown parser: every rule is total and
// tolerates malformed or partial markdown.
package sanitize

import "sort"

// Rule is a single named text transformation.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Sanitizer applies its rules in order.
type Sanitizer struct {
	rules []Rule
}

// Option configures a Sanitizer
type Option func(*Sanitizer)

// WithRules replaces the rule chain entirely.
func WithRules(rules ...Rule) Option {
	return func(s *Sanitizer) {
		s.rules = rules
	}
}

// WithEmojiMarkers sets the emoji markers used by the bold-emoji-lines rule.
func WithEmojiMarkers(markers ...string) Option {
	return func(s *Sanitizer) {
		s.rules = DefaultRules(markers)
	}
}

// New creates a Sanitizer with the default rule chain and DefaultEmojiMarkers.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{rules: DefaultRules(DefaultEmojiMarkers)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule chain in application order.
func (s *Sanitizer) Rules() []Rule {
	return s.rules
}

// Apply runs the rule chain exactly once.
func (s *Sanitizer) Apply(text string) string {
	for _, rule := range s.rules {
		text = rule.Apply(text)
	}
	return text
}

// Sanitize runs the rule chain until the text stops changing, so that
// Sanitize(Sanitize(x)) == Sanitize(x) even when removing one construct
// uncovers another (e.g. "<!<!-- a -->-- b -->"). The default rules either
// delete text or are idempotent, so the loop terminates; custom rules passed
// through WithRules must converge the same way.
func (s *Sanitizer) Sanitize(text string) string {
	for {
		next := s.Apply(text)
		if next == text {
			return next
		}
		text = next
	}
}

// DefaultEmojiMarkers are the section markers used by the built-in report
// templates.
var DefaultEmojiMarkers = []string{
	"📅", "📆", "🎯", "✅", "📋", "🔴", "⏳", "📊", "💡", "🔥",
	"⚡", "📝", "🌅", "🌙", "🏆", "⚠️", "📌", "🗓",
}

// DefaultRules returns the standard chain. Order matters: the emoji rule
// assumes heading and emphasis markers are already gone.
func DefaultRules(emojiMarkers []string) []Rule {
	return []Rule{
		{Name: "strip-comments", Apply: StripComments},
		{Name: "strip-headings", Apply: StripHeadings},
		{Name: "strip-bold", Apply: StripBold},
		{Name: "strip-italic", Apply: StripItalic},
		{Name: "drop-rules", Apply: DropHorizontalRules},
		{Name: "drop-table-rows", Apply: DropTableRows},
		{Name: "bold-emoji-lines", Apply: BoldEmojiLines(emojiMarkers)},
	}
}

// sortedMarkers orders markers longest first so "⚠️" wins over a bare "⚠".
func sortedMarkers(markers []string) []string {
	out := make([]string, 0, len(markers))
	seen := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
