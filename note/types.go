// Package note turns a wiki note HTML body into a flat, typed block model
// that layout and rendering operate on.
package note

import "fmt"

// Kind discriminates block types in the document model.
type Kind int

const (
	KindHeading Kind = iota
	KindParagraph
	KindList
	KindTable
	KindImage
	KindCode
)

var kindNames = map[Kind]string{
	KindHeading:   "heading",
	KindParagraph: "paragraph",
	KindList:      "list",
	KindTable:     "table",
	KindImage:     "image",
	KindCode:      "code",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Run is a stretch of inline content. A non-empty Href makes it a link run.
type Run struct {
	Text string
	Href string
}

// ListItem is a single rendered list entry.
type ListItem struct {
	Runs []Run
}

// Cell holds table cell content. Cells whose whole content is a single link
// keep it as a link run, anything richer is flattened to plain text. Header
// marks a cell rendered with header emphasis wherever it sits in the table.
type Cell struct {
	Runs   []Run
	Header bool
}

// Text returns the concatenated plain text of the cell.
func (c Cell) Text() string {
	var out string
	for _, r := range c.Runs {
		out += r.Text
	}
	return out
}

// ImageRef is an unresolved image reference as it appears in the source.
// Dimension hints come from width/height attributes or the inline style and
// are zero when absent.
type ImageRef struct {
	Source     string
	WidthHint  int // pixels
	HeightHint int
}

// Block is one element of the flat document model. Which fields are
// meaningful depends on Kind.
type Block struct {
	Kind Kind

	Level int    // KindHeading: 1 to 6
	Text  string // KindHeading: flattened title, KindCode: verbatim content
	Runs  []Run  // KindParagraph

	Ordered bool       // KindList
	Items   []ListItem // KindList

	Rows [][]Cell // KindTable

	Image ImageRef // KindImage
}

// Document is an assembled note ready for layout.
type Document struct {
	Title  string
	Blocks []Block
}

// ImageSources collects references of all image blocks in document order.
// Positions returned match positions accepted by ResolvedAt-style lookups:
// the i-th source belongs to the i-th image block.
func ImageSources(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		if b.Kind == KindImage {
			out = append(out, b.Image.Source)
		}
	}
	return out
}
