// ABOUTME: Renders a conversation transcript as a standalone HTML page.
// ABOUTME: Markdown message bodies are converted with goldmark.

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/draftroom/draftroom-client/internal/assistant"
)

// Meta labels the exported transcript.
type Meta struct {
	ProjectID  string
	ChannelID  string
	ExportedAt time.Time
}

// entry is one rendered exchange.
type entry struct {
	Question  string
	Answer    template.HTML
	Model     string
	Reasoning bool
	Citations []string
	AskedAt   string
}

var pageTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Assistant transcript {{.Meta.ProjectID}}/{{.Meta.ChannelID}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.question { font-weight: bold; margin-top: 2rem; }
.answer { border-left: 3px solid #ccc; padding-left: 1rem; }
.meta { color: #666; font-size: 0.85rem; }
.citations { font-size: 0.85rem; color: #444; }
</style>
</head>
<body>
<h1>Assistant transcript</h1>
<p class="meta">Project {{.Meta.ProjectID}}, channel {{.Meta.ChannelID}}, exported {{.Meta.ExportedAt.Format "2006-01-02 15:04 MST"}}</p>
{{range .Entries}}
<div class="question">{{.Question}}</div>
<p class="meta">{{.AskedAt}}{{if .Model}} &middot; {{.Model}}{{end}}{{if .Reasoning}} &middot; extended reasoning{{end}}</p>
<div class="answer">{{.Answer}}</div>
{{if .Citations}}<p class="citations">Sources: {{range $i, $c := .Citations}}{{if $i}}, {{end}}{{$c}}{{end}}</p>{{end}}
{{end}}
</body>
</html>
`))

// HTML writes the exchanges as a self-contained HTML transcript. Display
// text is treated as markdown; exchanges still in flight are skipped.
func HTML(w io.Writer, meta Meta, exchanges []assistant.Exchange) error {
	entries := make([]entry, 0, len(exchanges))
	for _, ex := range exchanges {
		if ex.Status != assistant.StatusComplete {
			continue
		}

		var body bytes.Buffer
		if err := goldmark.Convert([]byte(ex.DisplayMessage), &body); err != nil {
			return fmt.Errorf("rendering message markdown: %w", err)
		}

		e := entry{
			Question: ex.Question,
			Answer:   template.HTML(body.String()),
		}
		if !ex.CreatedAt.IsZero() {
			e.AskedAt = ex.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		if ex.Response != nil {
			e.Model = ex.Response.Model
			e.Reasoning = ex.Response.ReasoningUsed
			for _, c := range ex.Response.Citations {
				e.Citations = append(e.Citations, c.Label)
			}
		}
		entries = append(entries, e)
	}

	data := struct {
		Meta    Meta
		Entries []entry
	}{Meta: meta, Entries: entries}

	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}
	return nil
}
