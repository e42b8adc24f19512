package receipt

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect names the noise labels of one receipt layout. Each exclusion is a
// regular expression; a line matching any of them is never an item.
type Dialect struct {
	Name       string
	Exclusions []string
}

// FinnishGrocery is the grocery receipt layout the parser was built for:
// totals, loyalty-program lines, reference numbers, customer-service phone
// numbers and category subtotals.
var FinnishGrocery = Dialect{
	Name: "fi-grocery",
	Exclusions: []string{
		`YHTEENSA`,
		`PLUSSA`,
		`Viite`,
		`KERRYTTAVAT`,
		`Ruokaostokset`,
		`Kayttotavaraostokset`,
		`Asiakaspalvelu`,
		`P\. \d{3} \d{3} \d{4}`,
		`Bonustapahtuma`,
	},
}

// itemShape matches "<name with at least one letter><whitespace><price>" where
// the price ends the line and is made of digits with , or . separators
var itemShape = regexp.MustCompile(`^(.*\p{L}.*?)\s+(\d[\d.,]*)$`)

// Line is an item-shaped line found in receipt text
type Line struct {
	Number int    // 1-based line number in the text
	Item   string // trimmed product name
	Price  string // price with "." as the decimal separator
}

// ExclusionRule rejects lines that carry a known non-item label
type ExclusionRule struct {
	pattern *regexp.Regexp
}

// NewExclusionRule compiles an exclusion pattern
func NewExclusionRule(pattern string) (ExclusionRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ExclusionRule{}, fmt.Errorf("compiling exclusion %q: %w", pattern, err)
	}
	return ExclusionRule{pattern: re}, nil
}

// Excludes reports whether the line matches the rule anywhere
func (r ExclusionRule) Excludes(line string) bool {
	return r.pattern.MatchString(line)
}

func (r ExclusionRule) String() string {
	return r.pattern.String()
}

// ShapeRule accepts lines shaped like an item followed by its price
type ShapeRule struct{}

// Extract returns the trimmed name and the price with a canonical decimal
// point, or ok=false if the line is not item-shaped
func (ShapeRule) Extract(line string) (name, price string, ok bool) {
	m := itemShape.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	name = strings.TrimSpace(m[1])
	if name == "" {
		return "", "", false
	}
	return name, strings.ReplaceAll(m[2], ",", "."), true
}

// Parser picks item lines out of raw receipt text. Exclusions are checked
// first, then the shape rule.
type Parser struct {
	dialect    string
	exclusions []ExclusionRule
	shape      ShapeRule
}

// NewParser builds a parser for the dialect plus any extra exclusion patterns
func NewParser(d Dialect, extra ...string) (*Parser, error) {
	patterns := append(append([]string{}, d.Exclusions...), extra...)
	p := &Parser{dialect: d.Name, exclusions: make([]ExclusionRule, 0, len(patterns))}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		rule, err := NewExclusionRule(pattern)
		if err != nil {
			return nil, err
		}
		p.exclusions = append(p.exclusions, rule)
	}
	return p, nil
}

// Parse returns the item lines of text in the order they appear. Lines that
// are excluded or not item-shaped are skipped.
func (p *Parser) Parse(text string) []Line {
	lines := make([]Line, 0)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if line == "" || p.excluded(line) {
			continue
		}
		name, price, ok := p.shape.Extract(line)
		if !ok {
			continue
		}
		lines = append(lines, Line{Number: i + 1, Item: name, Price: price})
	}
	return lines
}

func (p *Parser) excluded(line string) bool {
	for _, rule := range p.exclusions {
		if rule.Excludes(line) {
			return true
		}
	}
	return false
}

// Dialect returns the name of the dialect the parser was built from
func (p *Parser) Dialect() string {
	return p.dialect
}
