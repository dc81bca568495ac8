// Package pairing classifies fastq filenames into forward and reverse reads
// and groups them into pairs.
package pairing

import (
	"fmt"
	"regexp"
	"strings"

	"samplevault/internal/models"
)

// Pattern is one forward/reverse token convention, such as _R1/_R2.
type Pattern struct {
	Name    string `toml:"name" yaml:"name" json:"name"`
	Forward string `toml:"forward" yaml:"forward" json:"forward"`
	Reverse string `toml:"reverse" yaml:"reverse" json:"reverse"`
}

// DefaultPatterns lists the built-in conventions in priority order. The bare
// numeric convention comes last since its tokens also read as lane suffixes.
var DefaultPatterns = []Pattern{
	{Name: "illumina", Forward: "_R1", Reverse: "_R2"},
	{Name: "strand", Forward: "_fwd", Reverse: "_rev"},
	{Name: "letter", Forward: "_F", Reverse: "_R"},
	{Name: "numeric", Forward: "_1", Reverse: "_2"},
}

// Classification is the result of matching one filename.
type Classification struct {
	Pattern   string
	Stem      string
	Lane      string
	Extension string
	Direction models.Direction
}

// Key groups the two halves of one pair.
func (c Classification) Key() string {
	return strings.Join([]string{c.Pattern, c.Stem, c.Lane, strings.ToLower(c.Extension)}, "\x00")
}

// Candidate is an attachment eligible for pairing.
type Candidate struct {
	ID       string
	Filename string
}

// Pair links a forward and a reverse candidate.
type Pair struct {
	ForwardID string
	ReverseID string
}

type compiledPattern struct {
	Pattern
	re *regexp.Regexp
}

// Matcher classifies filenames against an ordered pattern list.
type Matcher struct {
	patterns []compiledPattern
}

// NewMatcher compiles patterns. An empty list selects DefaultPatterns.
func NewMatcher(patterns []Pattern) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	seen := map[string]struct{}{}
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("pairing pattern name is required")
		}
		if _, ok := seen[p.Name]; ok {
			return nil, fmt.Errorf("duplicate pairing pattern %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Forward == "" || p.Reverse == "" {
			return nil, fmt.Errorf("pairing pattern %q needs forward and reverse tokens", p.Name)
		}
		if p.Forward == p.Reverse {
			return nil, fmt.Errorf("pairing pattern %q uses the same token for both directions", p.Name)
		}
		// stem, direction token, optional lane digits; matched on the name
		// without its fastq extension.
		expr := fmt.Sprintf(`^(.+?)(%s|%s)(_\d+)?$`, regexp.QuoteMeta(p.Forward), regexp.QuoteMeta(p.Reverse))
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile pairing pattern %q: %w", p.Name, err)
		}
		compiled = append(compiled, compiledPattern{Pattern: p, re: re})
	}
	return &Matcher{patterns: compiled}, nil
}

// Patterns returns the configured patterns in priority order.
func (m *Matcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.Pattern
	}
	return out
}

// Classify matches filename against the patterns in order. Non-fastq names
// never classify.
func (m *Matcher) Classify(filename string) (Classification, bool) {
	filename = strings.TrimSpace(filename)
	ext := models.FastqExtension(filename)
	if ext == "" {
		return Classification{}, false
	}
	name := filename[:len(filename)-len(ext)-1]

	for _, p := range m.patterns {
		match := p.re.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		c := Classification{
			Pattern:   p.Name,
			Stem:      match[1],
			Lane:      match[3],
			Extension: ext,
			Direction: models.DirectionForward,
		}
		if match[2] == p.Reverse {
			c.Direction = models.DirectionReverse
		}
		return c, true
	}
	return Classification{}, false
}

// Pairs groups candidates by classification key and returns every key with
// exactly one forward and one reverse member, ordered by the first member's
// position in candidates.
func (m *Matcher) Pairs(candidates []Candidate) []Pair {
	type group struct {
		forward []string
		reverse []string
	}
	groups := map[string]*group{}
	order := []string{}

	for _, c := range candidates {
		class, ok := m.Classify(c.Filename)
		if !ok {
			continue
		}
		key := class.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		if class.Direction == models.DirectionForward {
			g.forward = append(g.forward, c.ID)
		} else {
			g.reverse = append(g.reverse, c.ID)
		}
	}

	pairs := []Pair{}
	for _, key := range order {
		g := groups[key]
		if len(g.forward) != 1 || len(g.reverse) != 1 {
			continue
		}
		pairs = append(pairs, Pair{ForwardID: g.forward[0], ReverseID: g.reverse[0]})
	}
	return pairs
}
