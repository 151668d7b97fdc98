// Package templates renders the GUI pages as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"swbatch/internal/config"
	"swbatch/internal/history"
)

// RunView is the slice of batch run state the index page displays.
type RunView struct {
	ID      string
	State   string
	Current int
	Total   int
	Error   string
}

// IndexPage renders the settings form, active runs and recent history.
func IndexPage(settings config.Settings, active []RunView, recent []history.RunRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<title>swbatch</title>`)
		b.WriteString(`<link rel="stylesheet" href="/static/style.css">`)
		b.WriteString(`</head><body><main>`)
		b.WriteString(`<h1>swbatch</h1><p>Batch SolidWorks conversion</p>`)

		b.WriteString(`<section id="settings"><h2>Settings</h2><form id="settings-form">`)
		writeTextField(&b, "input_dir", "Input directory", settings.InputDir)
		writeTextField(&b, "output_dir", "Output directory", settings.OutputDir)
		writeSelect(&b, "input_format", "Input format", settings.InputFormat, []string{"sldprt", "sldasm", "all"})
		writeSelect(&b, "output_format", "Output format", settings.OutputFormat, []string{"stl", "3mf", "all"})
		writeCheckbox(&b, "preserve_structure", "Preserve directory structure", settings.PreserveStructure)
		writeCheckbox(&b, "skip_existing", "Skip up-to-date outputs", settings.SkipExisting)
		b.WriteString(`<button type="button" id="scan">Scan</button>`)
		b.WriteString(`<button type="button" id="convert">Convert</button>`)
		b.WriteString(`</form><pre id="progress"></pre></section>`)

		b.WriteString(`<section id="runs"><h2>Runs</h2><ul>`)
		for _, run := range active {
			short := run.ID
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(&b, `<li><a href="/api/runs/%s">%s</a> &mdash; %s (%d/%d)`,
				templ.EscapeString(run.ID), templ.EscapeString(short),
				templ.EscapeString(run.State), run.Current, run.Total)
			if run.Error != "" {
				fmt.Fprintf(&b, ` <em>%s</em>`, templ.EscapeString(run.Error))
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ul></section>`)

		b.WriteString(`<section id="history"><h2>History</h2><table>`)
		b.WriteString(`<tr><th>Finished</th><th>Input</th><th>Formats</th><th>Success</th><th>Skipped</th><th>Failed</th></tr>`)
		for _, rec := range recent {
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td></tr>`,
				templ.EscapeString(rec.FinishedAt.Format("2006-01-02 15:04")),
				templ.EscapeString(rec.InputDir),
				templ.EscapeString(strings.Join(rec.Formats, ", ")),
				rec.Stats.Success, rec.Stats.Skipped, rec.Stats.Failed)
		}
		b.WriteString(`</table></section>`)

		b.WriteString(`<script src="/static/app.js"></script>`)
		b.WriteString(`</main></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeTextField(b *strings.Builder, name, label, value string) {
	fmt.Fprintf(b, `<label>%s<input type="text" name="%s" value="%s"></label>`,
		templ.EscapeString(label), name, templ.EscapeString(value))
}

func writeSelect(b *strings.Builder, name, label, selected string, options []string) {
	fmt.Fprintf(b, `<label>%s<select name="%s">`, templ.EscapeString(label), name)
	for _, opt := range options {
		marker := ""
		if opt == selected {
			marker = ` selected`
		}
		fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, opt, marker, opt)
	}
	b.WriteString(`</select></label>`)
}

func writeCheckbox(b *strings.Builder, name, label string, checked bool) {
	marker := ""
	if checked {
		marker = ` checked`
	}
	fmt.Fprintf(b, `<label><input type="checkbox" name="%s"%s>%s</label>`,
		name, marker, templ.EscapeString(label))
}
