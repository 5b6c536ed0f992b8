package convert

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kpc/kibela"
	"kpc/layout"
	"kpc/note"
)

// assembleDocument builds the final document: normalized note title on top of
// the extracted block sequence. Titles are cleaned the same way body text is
// and composed to NFC so visually identical titles produce identical output
// file names.
func assembleDocument(n *kibela.Note, blocks []note.Block, fallback string) note.Document {
	title := norm.NFC.String(note.CleanText(n.Title))
	if len(title) == 0 {
		title = fallback
	}
	if len(title) == 0 {
		title = "Untitled note"
	}
	return note.Document{Title: title, Blocks: blocks}
}

// dumpDocument renders a plain text outline of the laid out document, stored
// in the debug report next to the fetched body.
func dumpDocument(doc note.Document, els []layout.Element) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", doc.Title)
	for i, el := range els {
		fmt.Fprintf(&b, "%3d %-9s", i, el.Block.Kind)
		switch el.Block.Kind {
		case note.KindHeading:
			fmt.Fprintf(&b, " h%d %q", el.Block.Level, clip(el.Block.Text))
		case note.KindParagraph:
			fmt.Fprintf(&b, " runs=%d %q", len(el.Block.Runs), clip(runText(el.Block.Runs)))
		case note.KindList:
			fmt.Fprintf(&b, " ordered=%t items=%d", el.Block.Ordered, len(el.Block.Items))
		case note.KindTable:
			cols, headers := 0, 0
			if len(el.Block.Rows) != 0 {
				cols = len(el.Block.Rows[0])
			}
			for _, row := range el.Block.Rows {
				for _, c := range row {
					if c.Header {
						headers++
					}
				}
			}
			fmt.Fprintf(&b, " headers=%d rows=%d cols=%d", headers, len(el.Block.Rows), cols)
		case note.KindImage:
			switch {
			case el.Resolved == nil:
			case el.Resolved.OK():
				fmt.Fprintf(&b, " %dx%dpx draw %.1fx%.1fpt", el.Resolved.Width, el.Resolved.Height, el.DrawWidth, el.DrawHeight)
			default:
				fmt.Fprintf(&b, " placeholder (%s)", el.Resolved.Reason)
			}
		case note.KindCode:
			fmt.Fprintf(&b, " %d bytes", len(el.Block.Text))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func runText(runs []note.Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

func clip(s string) string {
	const limit = 60
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
