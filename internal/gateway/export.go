// ABOUTME: Document export: renders a meeting document as Markdown, optionally
// ABOUTME: converted to HTML via goldmark

package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/huddle-sync/internal/document"
	"github.com/2389/huddle-sync/internal/store"
)

var sectionTitles = map[string]string{
	document.CollectionSegueNotes:       "Segue",
	document.CollectionScorecard:        "Scorecard",
	document.CollectionRocks:            "Rocks",
	document.CollectionPriorTodos:       "Prior Week To-Dos",
	document.CollectionIssues:           "Issues",
	document.CollectionNewTodos:         "New To-Dos",
	document.CollectionPositiveFeedback: "Retro: Went Well",
	document.CollectionNegativeFeedback: "Retro: Needs Work",
	document.CollectionRetroScores:      "Retro Scores",
	document.CollectionBacklog:          "Backlog",
}

// handleExport renders a document as Markdown, or HTML with ?format=html.
// The durable store is the source: an export never requires a live room.
func (g *Gateway) handleExport(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	info, err := g.store.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "resolving document")
		return
	}

	doc, err := g.store.LoadSnapshot(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading document")
		return
	}
	backlog, err := g.store.ListRecords(r.Context(), documentID, document.CollectionBacklog)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading backlog")
		return
	}

	md := renderMarkdown(info, doc, backlog)

	switch r.URL.Query().Get("format") {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
	case "html":
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(md), &buf); err != nil {
			writeError(w, http.StatusInternalServerError, "rendering html")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown or html")
	}
}

// renderMarkdown builds the Markdown rendition: title, meeting date, every
// live section in display order, then the backlog. Empty sections are noted
// rather than omitted so the export mirrors the document shape.
func renderMarkdown(info *store.DocumentInfo, doc *document.Document, backlog []document.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", info.Title)
	fmt.Fprintf(&b, "Week %d, %s\n", info.WeekNumber, info.MeetingDate.Format("2006-01-02"))

	for _, name := range document.LiveCollections {
		c, ok := doc.Collection(name)
		if !ok {
			continue
		}
		writeSection(&b, name, c.Records())
	}
	writeSection(&b, document.CollectionBacklog, backlog)

	return b.String()
}

func writeSection(b *strings.Builder, collection string, records []document.Record) {
	fmt.Fprintf(b, "\n## %s\n\n", sectionTitles[collection])
	if len(records) == 0 {
		b.WriteString("_none_\n")
		return
	}
	for _, rec := range records {
		b.WriteString(renderRecord(rec))
		b.WriteByte('\n')
	}
}

func renderRecord(rec document.Record) string {
	switch v := rec.(type) {
	case *document.SegueNote:
		if v.Author != "" {
			return fmt.Sprintf("- **%s**: %s", v.Author, v.Text)
		}
		return fmt.Sprintf("- %s", v.Text)
	case *document.ScorecardValue:
		return fmt.Sprintf("- %s (%s): %s, target %s", v.Metric, v.Owner, v.Value, v.Target)
	case *document.Rock:
		return fmt.Sprintf("- %s (%s) [%s]", v.Title, v.Owner, v.Status)
	case *document.Todo:
		line := fmt.Sprintf("- %s %s (%s)", checkbox(v.Done), v.Text, v.Owner)
		if v.CarriedFrom != "" {
			line += " _(carried forward)_"
		}
		return line
	case *document.Issue:
		return fmt.Sprintf("- %s %s (%s)", checkbox(v.Resolved), v.Text, v.Owner)
	case *document.RetroFeedback:
		return fmt.Sprintf("- **%s**: %s", v.Author, v.Text)
	case *document.RetroScore:
		return fmt.Sprintf("- **%s**: %d/10", v.Author, v.Score)
	case *document.BacklogNote:
		if v.Owner != "" {
			return fmt.Sprintf("- %s (%s)", v.Text, v.Owner)
		}
		return fmt.Sprintf("- %s", v.Text)
	default:
		return fmt.Sprintf("- %s", rec.RecordID())
	}
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}
