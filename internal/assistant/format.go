// ABOUTME: Pure text formatting for assistant responses.
// ABOUTME: Strips embedded action blocks, resolves citation markers, tidies whitespace.

package assistant

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/draftroom/draftroom-client/internal/api"
)

// The assistant embeds machine-readable suggested actions in the message
// text between these markers. The block body is a JSON array of
// {action_type, summary, payload} objects. Only the first marker pair is
// honored; an opening marker with no close is treated as literal text.
const (
	actionsOpen  = "[[actions]]"
	actionsClose = "[[/actions]]"
)

// citationRe matches inline citation placeholders: [resource:<id>] or
// [message:<id>]. Group 1 is the origin, group 2 the origin id.
var citationRe = regexp.MustCompile(`\[(resource|message):([^\]\s]+)\]`)

// blankRunRe matches runs of three or more newlines, which collapse to a
// single blank line.
var blankRunRe = regexp.MustCompile(`\n{3,}`)

// trailingSpaceRe matches trailing spaces and tabs before a newline.
var trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)

// FormatMessage produces the display text for a raw response message:
// the embedded actions block is removed, citation placeholders are
// replaced with their bold labels (unresolved ones are deleted), and
// whitespace is normalized.
func FormatMessage(message string, citations []api.Citation) string {
	text, _ := splitActions(message)
	text = substituteCitations(text, citations)
	return tidyWhitespace(text)
}

// ParseSuggestedActions extracts the suggested actions embedded in a raw
// response message. A block whose body is not valid JSON yields no actions.
func ParseSuggestedActions(message string) []SuggestedAction {
	_, actions := splitActions(message)
	return actions
}

// splitActions removes the first well-delimited actions block from text and
// parses its body. Returns the cleaned text and the parsed actions.
func splitActions(text string) (string, []SuggestedAction) {
	start := strings.Index(text, actionsOpen)
	if start < 0 {
		return text, nil
	}
	rest := text[start+len(actionsOpen):]
	end := strings.Index(rest, actionsClose)
	if end < 0 {
		return text, nil
	}

	body := rest[:end]
	cleaned := text[:start] + rest[end+len(actionsClose):]

	var actions []SuggestedAction
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &actions); err != nil {
		// Machine payload that doesn't parse is still stripped from
		// the visible text.
		return cleaned, nil
	}
	return cleaned, actions
}

// substituteCitations replaces citation placeholders with the matching
// citation's label in bold. Lookup is keyed by lowercase "origin:originId".
// Placeholders with no matching citation are deleted.
func substituteCitations(text string, citations []api.Citation) string {
	if len(citations) == 0 {
		return citationRe.ReplaceAllString(text, "")
	}

	labels := make(map[string]string, len(citations))
	for _, c := range citations {
		key := strings.ToLower(c.Origin + ":" + c.OriginID)
		labels[key] = c.Label
	}

	return citationRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := citationRe.FindStringSubmatch(match)
		key := strings.ToLower(groups[1] + ":" + groups[2])
		label, ok := labels[key]
		if !ok || label == "" {
			return ""
		}
		return "**" + label + "**"
	})
}

// tidyWhitespace trims trailing spaces per line, collapses runs of blank
// lines to a single blank line, and trims the ends of the whole text.
func tidyWhitespace(text string) string {
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
