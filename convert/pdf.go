package convert

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"go.uber.org/zap"

	"kpc/layout"
	"kpc/note"
	"kpc/utils/images"
)

// Renderer produces the final output stream from a laid out document. Render
// must not emit partial output - either the whole document makes it out or
// nothing does.
type Renderer interface {
	Render(doc note.Document, els []layout.Element, out io.Writer) error
}

// type sizes and leadings, points
const (
	titleSize = 24.0
	titleLead = 28.0
	titleGap  = 20.0

	bodySize = 11.0
	bodyLead = 14.0

	codeSize = 9.0
	codeLead = 11.0

	tableLead  = 16.0
	listIndent = 14.0
)

var headingSizes = [6]float64{18, 16, 14, 12, 11, 11}

// PDFRenderer renders documents with the built-in cp1252 core fonts. Runes
// outside that repertoire are substituted, which gets a single warning per
// document.
type PDFRenderer struct {
	Page layout.Page
	Log  *zap.Logger
}

func (r *PDFRenderer) Render(doc note.Document, els []layout.Element, out io.Writer) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: r.Page.Width, Ht: r.Page.Height},
	})
	pdf.SetMargins(r.Page.Margin, r.Page.Margin, r.Page.Margin)
	pdf.SetAutoPageBreak(true, r.Page.Margin)
	pdf.AddPage()

	w := &pdfWriter{
		pdf:  pdf,
		tr:   pdf.UnicodeTranslatorFromDescriptor(""),
		page: r.Page,
	}

	w.title(doc.Title)
	for i, el := range els {
		if pdf.Err() {
			break
		}
		if el.Spacing.Before > 0 {
			pdf.Ln(el.Spacing.Before)
		}
		switch el.Block.Kind {
		case note.KindHeading:
			w.heading(el.Block)
		case note.KindParagraph:
			w.paragraph(el.Block)
		case note.KindList:
			w.list(el.Block)
		case note.KindTable:
			w.table(el.Block)
		case note.KindImage:
			w.image(i, el)
		case note.KindCode:
			w.code(el.Block.Text)
		}
		if el.Spacing.After > 0 {
			pdf.Ln(el.Spacing.After)
		}
	}

	if w.substituted && r.Log != nil {
		r.Log.Warn("Some characters are not representable in built-in fonts and were substituted",
			zap.String("title", doc.Title))
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("unable to assemble pdf: %w", err)
	}
	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("unable to write pdf: %w", err)
	}
	return nil
}

// runes cp1252 carries above 0xff
const cp1252Extras = "€‚ƒ„…†‡ˆ‰Š‹ŒŽ" +
	"‘’“”•–—˜™š›œžŸ"

type pdfWriter struct {
	pdf  *fpdf.Fpdf
	tr   func(string) string
	page layout.Page

	substituted bool
}

// text converts a string for the core fonts, remembering when something did
// not survive the trip.
func (w *pdfWriter) text(s string) string {
	if !w.substituted {
		for _, r := range s {
			if r > 0xff && !strings.ContainsRune(cp1252Extras, r) {
				w.substituted = true
				break
			}
		}
	}
	return w.tr(s)
}

func (w *pdfWriter) body() {
	w.pdf.SetFont("Helvetica", "", bodySize)
	w.pdf.SetTextColor(0, 0, 0)
}

func (w *pdfWriter) title(s string) {
	w.pdf.SetFont("Helvetica", "B", titleSize)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.MultiCell(0, titleLead, w.text(s), "", "L", false)
	w.pdf.Ln(titleGap)
}

func (w *pdfWriter) heading(b note.Block) {
	level := min(max(b.Level, 1), 6)
	size := headingSizes[level-1]
	w.pdf.SetFont("Helvetica", "B", size)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.MultiCell(0, size+4, w.text(b.Text), "", "L", false)
}

func (w *pdfWriter) paragraph(b note.Block) {
	w.body()
	w.runs(b.Runs)
	w.pdf.Ln(bodyLead)
}

// runs writes an inline sequence flowing at the current position. Link runs
// are underlined, colored and clickable.
func (w *pdfWriter) runs(runs []note.Run) {
	for _, r := range runs {
		if len(r.Href) != 0 {
			w.pdf.SetFont("Helvetica", "U", bodySize)
			w.pdf.SetTextColor(0, 0, 238)
			w.pdf.WriteLinkString(bodyLead, w.text(r.Text), r.Href)
			w.body()
			continue
		}
		w.pdf.Write(bodyLead, w.text(r.Text))
	}
}

func (w *pdfWriter) list(b note.Block) {
	w.body()
	left, _, _, _ := w.pdf.GetMargins()
	w.pdf.SetLeftMargin(left + listIndent)
	w.pdf.SetX(left + listIndent)
	for i, item := range b.Items {
		marker := "• "
		if b.Ordered {
			marker = fmt.Sprintf("%d. ", i+1)
		}
		w.pdf.Write(bodyLead, w.text(marker))
		w.runs(item.Runs)
		w.pdf.Ln(bodyLead)
	}
	w.pdf.SetLeftMargin(left)
	w.pdf.SetX(left)
}

// table draws a simple grid: equal column widths across the content box,
// header cells bold on a light fill wherever they sit. Cells holding a single
// link stay clickable.
func (w *pdfWriter) table(b note.Block) {
	if len(b.Rows) == 0 || len(b.Rows[0]) == 0 {
		return
	}
	colW := w.page.ContentWidth() / float64(len(b.Rows[0]))

	w.pdf.SetDrawColor(128, 128, 128)
	w.pdf.SetFillColor(230, 230, 230)
	for _, row := range b.Rows {
		for _, cell := range row {
			style := ""
			if cell.Header {
				style = "B"
			}
			href := ""
			if len(cell.Runs) == 1 && len(cell.Runs[0].Href) != 0 {
				href = cell.Runs[0].Href
			}
			if len(href) != 0 {
				w.pdf.SetFont("Helvetica", style+"U", bodySize)
				w.pdf.SetTextColor(0, 0, 238)
			} else {
				w.pdf.SetFont("Helvetica", style, bodySize)
				w.pdf.SetTextColor(0, 0, 0)
			}
			w.pdf.CellFormat(colW, tableLead, w.text(cell.Text()), "1", 0, "L", cell.Header, 0, href)
		}
		w.pdf.Ln(tableLead)
	}
	w.pdf.SetTextColor(0, 0, 0)
}

func (w *pdfWriter) image(idx int, el layout.Element) {
	res := el.Resolved
	if res == nil || !res.OK() || el.DrawWidth <= 0 || el.DrawHeight <= 0 {
		w.placeholder(res)
		return
	}

	name := fmt.Sprintf("img-%d", idx)
	opts := fpdf.ImageOptions{ImageType: "JPEG"}
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(res.Data))
	if w.pdf.Err() {
		return
	}

	if w.pdf.GetY()+el.DrawHeight > w.page.Height-w.page.Margin {
		w.pdf.AddPage()
	}
	y := w.pdf.GetY()
	w.pdf.ImageOptions(name, w.page.Margin, y, el.DrawWidth, el.DrawHeight, false, opts, 0, "")
	w.pdf.SetY(y + el.DrawHeight)
}

// placeholder is what readers see instead of a picture that could not be
// resolved - the document always renders.
func (w *pdfWriter) placeholder(res *images.Resolved) {
	reason := images.FailEmptySource
	if res != nil && res.Reason != images.FailNone {
		reason = res.Reason
	}
	w.pdf.SetFont("Helvetica", "I", bodySize)
	w.pdf.SetTextColor(128, 128, 128)
	w.pdf.MultiCell(0, bodyLead, w.text(fmt.Sprintf("[image unavailable: %s]", reason)), "", "L", false)
	w.pdf.SetTextColor(0, 0, 0)
}

func (w *pdfWriter) code(text string) {
	w.pdf.SetFont("Courier", "", codeSize)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetFillColor(245, 245, 245)
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\t", "    ")
		if len(line) == 0 {
			line = " "
		}
		w.pdf.MultiCell(0, codeLead, w.text(line), "", "L", true)
	}
}
