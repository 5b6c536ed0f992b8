package note

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// elements whose content never reaches the document model
var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// flatText concatenates all descendant text without any normalization.
func flatText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && skipAtoms[n.DataAtom] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// runAccum assembles a normalized run sequence: plain text accumulates until
// a link interrupts it.
type runAccum struct {
	runs    []Run
	pending strings.Builder
}

func (a *runAccum) text(s string) {
	a.pending.WriteString(s)
}

func (a *runAccum) link(text, href string) {
	a.flush()
	a.runs = append(a.runs, Run{Text: text, Href: href})
}

func (a *runAccum) flush() {
	if a.pending.Len() == 0 {
		return
	}
	t := normalizeText(a.pending.String())
	a.pending.Reset()
	if len(t) == 0 {
		return
	}
	if t == " " {
		// bare separator between two adjacent links
		if len(a.runs) == 0 {
			return
		}
		a.runs = append(a.runs, Run{Text: " "})
		return
	}
	a.runs = append(a.runs, Run{Text: t})
}

func (a *runAccum) finish() []Run {
	a.flush()
	if len(a.runs) == 0 {
		return nil
	}
	a.runs[0].Text = strings.TrimLeft(a.runs[0].Text, " ")
	last := len(a.runs) - 1
	a.runs[last].Text = strings.TrimRight(a.runs[last].Text, " ")

	out := a.runs[:0]
	for _, r := range a.runs {
		if len(r.Text) != 0 {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// inlineRuns resolves the inline content of a container into an ordered run
// sequence. Formatting wrappers are descended into, anchors become link runs,
// nested lists and images are left for the block extractor.
func inlineRuns(n *html.Node) []Run {
	var a runAccum
	collectRuns(n, &a)
	return a.finish()
}

func collectRuns(n *html.Node, a *runAccum) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			a.text(c.Data)
		case html.ElementNode:
			switch {
			case skipAtoms[c.DataAtom]:
			case c.DataAtom == atom.Br:
				a.text(" ")
			case c.DataAtom == atom.A:
				text := strings.TrimSpace(normalizeText(flatText(c)))
				href := strings.TrimSpace(attrVal(c, "href"))
				switch {
				case len(text) == 0:
					// anchors with no visible text contribute nothing
				case len(href) == 0:
					// no destination - degrade to plain text
					a.text(flatText(c))
				default:
					a.link(text, href)
				}
			case c.DataAtom == atom.Img:
				// images are block-level in this model, the extractor emits them
			case c.DataAtom == atom.Ul || c.DataAtom == atom.Ol:
				// nested lists are emitted as separate blocks
			default:
				collectRuns(c, a)
			}
		}
	}
}
