// ABOUTME: Query-aware excerpting of LaTeX documents under a character budget.
// ABOUTME: Pure functions, no I/O - identical inputs always produce identical output.

package docprep

import (
	"fmt"
	"regexp"
	"strings"
)

// Budget derivation: assume a 16k-token context window, reserve 4k tokens
// for system instructions and the response, convert at 4 chars per token,
// and never exceed an absolute ceiling.
const (
	modelContextTokens = 16000
	reservedTokens     = 4000
	charsPerToken      = 4
	absoluteCeiling    = 48000
)

// DefaultMaxChars is the default character budget for prepared excerpts.
const DefaultMaxChars = min((modelContextTokens-reservedTokens)*charsPerToken, absoluteCeiling)

// truncationMarker is appended when a document is cut off. Output may exceed
// the budget by at most this marker's length.
const truncationMarker = "\n...[truncated]"

const (
	beginDocument = `\begin{document}`
	endDocument   = `\end{document}`
)

// headingRe matches LaTeX sectioning commands and captures the level keyword
// and the title. Starred variants are treated the same as unstarred.
var headingRe = regexp.MustCompile(`\\(section|subsection|subsubsection)\*?\{([^}]*)\}`)

// abstractRe matches the abstract environment including its delimiters.
var abstractRe = regexp.MustCompile(`(?s)\\begin\{abstract\}(.*?)\\end\{abstract\}`)

// section is one body section with its heading and content span.
type section struct {
	level   int    // 1 = \section, 2 = \subsection, 3 = \subsubsection
	title   string
	heading string // the original heading command, verbatim
	content string // everything between this heading and the next
	target  bool
}

// fullDocIntent marks queries that ask about the paper as a whole; every
// section becomes a target.
var fullDocIntent = []string{
	"review", "proofread", "assess", "feedback", "overall",
	"entire", "whole paper", "full paper",
}

// sectionAliases groups the vocabulary a query may use for each common
// paper section. A section is a target when its title contains any alias
// from a group the query mentioned.
var sectionAliases = map[string][]string{
	"introduction": {"introduction", "intro", "background", "motivation"},
	"methods":      {"method", "methodology", "approach", "architecture", "model", "theory", "preliminaries"},
	"results":      {"result", "experiment", "evaluation", "finding", "performance", "ablation"},
	"related":      {"related work", "prior work", "literature"},
	"discussion":   {"discussion", "analysis", "limitation"},
	"conclusion":   {"conclusion", "future work"},
	"abstract":     {"abstract", "summary"},
	"references":   {"reference", "bibliography", "citation"},
}

// Domain vocabulary that forces extra section groups to target.
var (
	mathVocab     = []string{"equation", "formula", "math", "derivation", "proof", "theorem", "lemma", "notation"}
	figureVocab   = []string{"figure", "table", "graph", "plot", "chart", "diagram", "visualization"}
	citationVocab = []string{"citation", "reference", "cite", "bibliography"}
)

// Prepare produces an excerpt of document no longer than maxChars (plus the
// truncation marker) biased toward sections relevant to query. Structural
// scaffolding - the LaTeX preamble and \end{document} - is always preserved
// when present. Pass maxChars <= 0 for DefaultMaxChars.
func Prepare(document, query string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	// Small-document fast path: no point excerpting.
	if len(document) <= maxChars/2 {
		return document
	}

	bodyStart := strings.Index(document, beginDocument)
	if bodyStart < 0 {
		// No recognizable structure: naive prefix truncation.
		if len(document) <= maxChars {
			return document
		}
		return document[:maxChars] + truncationMarker
	}

	preamble := document[:bodyStart+len(beginDocument)]
	body := document[bodyStart+len(beginDocument):]

	hasEnd := strings.Contains(body, endDocument)
	if hasEnd {
		body = body[:strings.Index(body, endDocument)]
	}

	abstract := ""
	if m := abstractRe.FindStringSubmatch(body); m != nil {
		abstract = strings.TrimSpace(m[1])
		body = strings.Replace(body, m[0], "", 1)
	}

	sections := splitSections(body)
	classifySections(sections, query)

	includeAbstract := wantsAbstract(query)

	var out strings.Builder
	out.WriteString(preamble)
	out.WriteString("\n")

	if abstract != "" {
		if includeAbstract {
			out.WriteString("\\begin{abstract}\n")
			out.WriteString(abstract)
			out.WriteString("\n\\end{abstract}\n")
		} else {
			out.WriteString(abstractPlaceholder(abstract))
		}
	}

	// Orientation aid: one line listing every section title in order.
	if len(sections) > 0 {
		titles := make([]string, len(sections))
		for i, s := range sections {
			titles[i] = s.title
		}
		fmt.Fprintf(&out, "%%%% Sections: %s\n", strings.Join(titles, " | "))
	}

	guard := maxChars * 9 / 10
	for _, s := range sections {
		if !s.target {
			fmt.Fprintf(&out, "%s\n%%%% [content omitted, %d chars]\n", s.heading, len(s.content))
			continue
		}
		out.WriteString(s.heading)
		out.WriteString("\n")
		content := strings.TrimSpace(s.content)
		if out.Len()+len(content) > guard {
			room := guard - out.Len()
			if room > 0 {
				out.WriteString(content[:min(room, len(content))])
			}
			fmt.Fprintf(&out, "\n%%%% [section continues, %d chars total]\n", len(s.content))
			continue
		}
		out.WriteString(content)
		out.WriteString("\n")
	}

	if hasEnd {
		out.WriteString(endDocument)
	}

	result := out.String()
	if len(result) > maxChars {
		result = result[:maxChars] + truncationMarker
	}
	return result
}

// splitSections parses the document body into ordered sections. Text before
// the first heading is attached to a synthetic untitled section so it is
// never silently dropped.
func splitSections(body string) []*section {
	locs := headingRe.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		// No sectioning commands at all: the whole body is one always-target
		// block, truncated under the budget guard like any other section.
		if lead := strings.TrimSpace(body); lead != "" {
			return []*section{{
				level:   1,
				title:   "(untitled)",
				heading: "%% [unsectioned body]",
				content: lead,
				target:  true,
			}}
		}
		return nil
	}

	var sections []*section
	if lead := strings.TrimSpace(body[:locs[0][0]]); lead != "" {
		sections = append(sections, &section{
			level:   1,
			title:   "(untitled)",
			heading: "%% [untitled front matter]",
			content: lead,
		})
	}

	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		level := 1
		switch body[loc[2]:loc[3]] {
		case "subsection":
			level = 2
		case "subsubsection":
			level = 3
		}
		sections = append(sections, &section{
			level:   level,
			title:   body[loc[4]:loc[5]],
			heading: body[loc[0]:loc[1]],
			content: body[loc[1]:end],
		})
	}
	return sections
}

// classifySections marks each section as target or heading-only, applying
// the rules in priority order: full-document intent, alias matching, fuzzy
// word matching, then domain vocabulary boosts.
func classifySections(sections []*section, query string) {
	q := strings.ToLower(query)

	if containsAny(q, fullDocIntent) {
		for _, s := range sections {
			s.target = true
		}
		return
	}

	matched := false
	for _, aliases := range sectionAliases {
		if !containsAny(q, aliases) {
			continue
		}
		for _, s := range sections {
			if titleMatches(s.title, aliases) {
				s.target = true
				matched = true
			}
		}
	}

	if !matched {
		words := queryWords(q)
		for _, s := range sections {
			content := strings.ToLower(s.content)
			hits := 0
			for _, w := range words {
				if strings.Contains(content, w) {
					hits++
				}
			}
			if hits >= 2 || (hits == 1 && len(words) == 1) {
				s.target = true
			}
		}
	}

	// Domain boosts stack on top of whatever matched above.
	if containsAny(q, mathVocab) {
		forceGroup(sections, sectionAliases["methods"])
	}
	if containsAny(q, figureVocab) {
		forceGroup(sections, sectionAliases["results"])
	}
	if containsAny(q, citationVocab) {
		forceGroup(sections, sectionAliases["references"])
		forceGroup(sections, sectionAliases["related"])
	}
}

// wantsAbstract reports whether the abstract should be included verbatim.
func wantsAbstract(query string) bool {
	q := strings.ToLower(query)
	return containsAny(q, fullDocIntent) || containsAny(q, sectionAliases["abstract"])
}

// abstractPlaceholder replaces an excluded abstract with a short preview.
func abstractPlaceholder(abstract string) string {
	preview := abstract
	if len(preview) > 100 {
		preview = preview[:100]
	}
	preview = strings.ReplaceAll(preview, "\n", " ")
	return fmt.Sprintf("%%%% [abstract omitted - preview: %s...]\n", preview)
}

// queryWords extracts lowercase query words longer than 4 characters,
// deduplicated, for fuzzy content matching.
func queryWords(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	seen := make(map[string]bool)
	var words []string
	for _, f := range fields {
		if len(f) > 4 && !seen[f] {
			seen[f] = true
			words = append(words, f)
		}
	}
	return words
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func titleMatches(title string, aliases []string) bool {
	t := strings.ToLower(title)
	for _, a := range aliases {
		if strings.Contains(t, a) {
			return true
		}
	}
	return false
}

func forceGroup(sections []*section, aliases []string) {
	for _, s := range sections {
		if titleMatches(s.title, aliases) {
			s.target = true
		}
	}
}
