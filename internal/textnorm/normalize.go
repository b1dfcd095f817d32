// Package textnorm turns model output into text a speech engine can read aloud.
package textnorm

import (
	"regexp"
	"strings"

	"github.com/ent0n29/ollavoice/internal/locale"
)

// Connectors are the locale words spliced into dotted tokens and the
// placeholder spoken instead of a table.
type Connectors struct {
	Decimal string
	Period  string
	Table   string
}

// ConnectorsFor returns the connectors configured for a locale.
func ConnectorsFor(l locale.Locale) Connectors {
	return Connectors{
		Decimal: l.DecimalWord,
		Period:  l.PeriodWord,
		Table:   l.TablePlaceholder,
	}
}

// French connectors, used when a locale leaves a field empty.
var defaultConnectors = Connectors{Decimal: "virgule", Period: "point", Table: "[Tableau]"}

var (
	fencedCodePattern     = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern     = regexp.MustCompile("`([^`\n]+)`")
	strayBacktickPattern  = regexp.MustCompile("`+")
	htmlTagPattern        = regexp.MustCompile(`<[^<>\n]+>`)
	markdownLinkPattern   = regexp.MustCompile(`\[([^\]\n]+)\]\([^)\n]*\)`)
	headingPattern        = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	horizontalRulePattern = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|_{3,}|\*{3,})[ \t]*$`)
	// Quote, bullet and numbered markers in any nesting order.
	lineMarkerPattern     = regexp.MustCompile(`(?m)^[ \t]*(?:>[ \t]*|[-*+][ \t]+|\d+\.[ \t]+)+`)
	boldStarPattern       = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	boldUnderPattern      = regexp.MustCompile(`(^|[^\p{L}\p{N}_])__([^_\n]+?)__([^\p{L}\p{N}_]|$)`)
	italicStarPattern     = regexp.MustCompile(`\*([^*\n]+?)\*`)
	italicUnderPattern    = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+?)_([^\p{L}\p{N}_]|$)`)
	trailingSpacePattern  = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRunPattern       = regexp.MustCompile(`\n{3,}`)
	decimalPattern        = regexp.MustCompile(`(\d+)\.(\d+)`)
	dottedWordPattern     = regexp.MustCompile(`([\p{L}\p{N}_]+)\.([\p{L}\p{N}_]+)`)
)

// Normalize strips markdown/HTML and rewrites dotted tokens so the synthesizer
// does not read them as abbreviations. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string, c Connectors) string {
	if c.Decimal == "" {
		c.Decimal = defaultConnectors.Decimal
	}
	if c.Period == "" {
		c.Period = defaultConnectors.Period
	}
	if c.Table == "" {
		c.Table = defaultConnectors.Table
	}

	// Every pass that changes the text removes markup or a dot.
	out := text
	for {
		next := pass(out, c)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(text string, c Connectors) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = StripMarkdown(text, c.Table)
	return RewriteDotted(text, c)
}

// StripMarkdown removes markup while keeping the readable text.
func StripMarkdown(text, tablePlaceholder string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = fencedCodePattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = strayBacktickPattern.ReplaceAllString(text, "")
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = horizontalRulePattern.ReplaceAllString(text, "")
	text = lineMarkerPattern.ReplaceAllString(text, "")
	text = boldStarPattern.ReplaceAllString(text, "$1")
	text = boldUnderPattern.ReplaceAllString(text, "$1$2$3")
	text = italicStarPattern.ReplaceAllString(text, "$1")
	text = italicUnderPattern.ReplaceAllString(text, "$1$2$3")
	text = collapseTables(text, tablePlaceholder)

	text = trailingSpacePattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// collapseTables replaces every run of consecutive lines containing a pipe
// with a single placeholder line.
func collapseTables(text, placeholder string) string {
	if !strings.Contains(text, "|") {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inTable := false
	for _, line := range lines {
		if strings.Contains(line, "|") {
			if !inTable {
				out = append(out, placeholder)
				inTable = true
			}
			continue
		}
		inTable = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// RewriteDotted spells out "3.14" and "a.txt" style tokens.
// Chains such as 1.2.3 need repeated passes because matches cannot overlap.
func RewriteDotted(text string, c Connectors) string {
	text = replaceUntilStable(decimalPattern, text, "${1} "+c.Decimal+" ${2}")
	return replaceUntilStable(dottedWordPattern, text, "${1} "+c.Period+" ${2}")
}

func replaceUntilStable(re *regexp.Regexp, text, repl string) string {
	for {
		next := re.ReplaceAllString(text, repl)
		if next == text {
			return text
		}
		text = next
	}
}
