package note

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

var headingLevel = map[atom.Atom]int{
	atom.H1: 1,
	atom.H2: 2,
	atom.H3: 3,
	atom.H4: 4,
	atom.H5: 5,
	atom.H6: 6,
}

// Parse reads an HTML note body and extracts the flat block sequence in
// document order. The only fatal outcome is a body that cannot be read at
// all - malformed markup degrades the way browsers degrade it.
func Parse(r io.Reader) ([]Block, error) {
	cr, err := charset.NewReader(r, "text/html; charset=utf-8")
	if err != nil {
		return nil, fmt.Errorf("unable to read note body: %w", err)
	}
	root, err := html.Parse(cr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse note body: %w", err)
	}

	start := findBody(root)
	if start == nil {
		start = root
	}

	var blocks []Block
	walk(start, &blocks)
	return blocks, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// walk descends through containers emitting blocks. A node consumed as a
// block is not descended into again, so nothing is emitted twice.
func walk(n *html.Node, blocks *[]Block) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if skipAtoms[c.DataAtom] {
			continue
		}

		if level, ok := headingLevel[c.DataAtom]; ok {
			if text := strings.TrimSpace(normalizeText(flatText(c))); len(text) != 0 {
				*blocks = append(*blocks, Block{Kind: KindHeading, Level: level, Text: text})
			}
			continue
		}

		switch c.DataAtom {
		case atom.P:
			if runs := inlineRuns(c); len(runs) != 0 {
				*blocks = append(*blocks, Block{Kind: KindParagraph, Runs: runs})
			}
			// pictures wrapped in the paragraph follow it as separate blocks
			appendImages(c, blocks)
		case atom.Img:
			*blocks = append(*blocks, imageBlock(c))
		case atom.Ul, atom.Ol:
			extractList(c, blocks)
		case atom.Table:
			extractTable(c, blocks)
		case atom.Pre:
			if text := strings.TrimRight(flatText(c), "\n"); len(strings.TrimSpace(text)) != 0 {
				*blocks = append(*blocks, Block{Kind: KindCode, Text: text})
			}
		default:
			walk(c, blocks)
		}
	}
}

func appendImages(n *html.Node, blocks *[]Block) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || skipAtoms[c.DataAtom] {
			continue
		}
		if c.DataAtom == atom.Img {
			*blocks = append(*blocks, imageBlock(c))
			continue
		}
		appendImages(c, blocks)
	}
}

func imageBlock(n *html.Node) Block {
	ref := ImageRef{
		Source:     strings.TrimSpace(attrVal(n, "src")),
		WidthHint:  pixels(attrVal(n, "width")),
		HeightHint: pixels(attrVal(n, "height")),
	}
	// inline style wins over attributes, same as in a browser
	if style := attrVal(n, "style"); len(style) != 0 {
		w, h := styleDimensions(style)
		if w > 0 {
			ref.WidthHint = w
		}
		if h > 0 {
			ref.HeightHint = h
		}
	}
	return Block{Kind: KindImage, Image: ref}
}

// extractList emits the list with its direct items, then every nested list
// as a separate block after it.
func extractList(n *html.Node, blocks *[]Block) {
	var (
		items  []ListItem
		nested []*html.Node
	)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		if runs := inlineRuns(c); len(runs) != 0 {
			items = append(items, ListItem{Runs: runs})
		}
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type == html.ElementNode && (g.DataAtom == atom.Ul || g.DataAtom == atom.Ol) {
				nested = append(nested, g)
			}
		}
	}
	if len(items) != 0 {
		*blocks = append(*blocks, Block{Kind: KindList, Ordered: n.DataAtom == atom.Ol, Items: items})
	}
	for _, g := range nested {
		extractList(g, blocks)
	}
}

func extractTable(n *html.Node, blocks *[]Block) {
	var (
		rows  [][]Cell
		anyTH bool
	)
	for _, tr := range tableRows(n) {
		var row []Cell
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom != atom.Th && c.DataAtom != atom.Td {
				continue
			}
			cell := makeCell(c)
			if c.DataAtom == atom.Th {
				cell.Header = true
				anyTH = true
			}
			row = append(row, cell)
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}

	// Semantic th cells carry header emphasis wherever they sit. A table with
	// no th anywhere falls back to treating its first row as the header.
	if !anyTH {
		for i := range rows[0] {
			rows[0][i].Header = true
		}
	}
	*blocks = append(*blocks, Block{Kind: KindTable, Rows: rows})
}

func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Tr:
			rows = append(rows, c)
		case atom.Thead, atom.Tbody, atom.Tfoot:
			for g := c.FirstChild; g != nil; g = g.NextSibling {
				if g.Type == html.ElementNode && g.DataAtom == atom.Tr {
					rows = append(rows, g)
				}
			}
		}
	}
	return rows
}

// makeCell keeps a whole-cell link as a styled run, anything richer flattens
// to plain text.
func makeCell(n *html.Node) Cell {
	runs := inlineRuns(n)
	switch {
	case len(runs) == 0:
		return Cell{}
	case len(runs) == 1 && len(runs[0].Href) != 0:
		return Cell{Runs: runs}
	case len(runs) == 1:
		return Cell{Runs: []Run{{Text: strings.TrimSpace(runs[0].Text)}}}
	default:
		var b strings.Builder
		for _, r := range runs {
			b.WriteString(r.Text)
		}
		return Cell{Runs: []Run{{Text: strings.TrimSpace(b.String())}}}
	}
}

// pixels parses a dimension attribute or CSS value. Relative units yield 0.
func pixels(v string) int {
	v = strings.TrimSpace(strings.ToLower(v))
	if len(v) == 0 || strings.HasSuffix(v, "%") {
		return 0
	}
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int(f)
}

// styleDimensions pulls width/height declarations out of an inline style.
func styleDimensions(style string) (w, h int) {
	p := css.NewParser(parse.NewInputString(style), true)
	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			return
		}
		if gt != css.DeclarationGrammar {
			continue
		}
		var val strings.Builder
		for _, tok := range p.Values() {
			val.Write(tok.Data)
		}
		px := pixels(val.String())
		switch strings.ToLower(string(data)) {
		case "width":
			if px > 0 {
				w = px
			}
		case "height":
			if px > 0 {
				h = px
			}
		}
	}
}
