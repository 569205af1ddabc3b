// Package markup converts editor HTML into paragraph-delimited plain text and
// back. Only block boundaries survive the round trip; inline formatting is
// discarded.
package markup

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockOpenTag = regexp.MustCompile(`(?i)<(p|div)(\s[^>]*)?>`)

// Hint records what Reassemble needs to rebuild the structure.
type Hint struct {
	HTML   bool
	Blocks int
}

// IsHTML reports whether s contains a paragraph or division opening tag.
func IsHTML(s string) bool {
	return blockOpenTag.MatchString(s)
}

// blockElements flush the current text run when entered or left.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}

// ExtractPlainText returns the plain text of s and the structure hint. Plain
// input is returned unchanged. HTML input yields one line per non-empty block,
// in document order.
func ExtractPlainText(s string) (string, Hint) {
	if !IsHTML(s) {
		return s, Hint{}
	}
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// html.Parse only fails on reader errors; keep the text as-is.
		return s, Hint{}
	}

	var (
		blocks []string
		cur    strings.Builder
	)
	// source line breaks inside a block are layout, not paragraph breaks
	flush := func() {
		if t := strings.Join(strings.Fields(cur.String()), " "); t != "" {
			blocks = append(blocks, t)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Head {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()

	return strings.Join(blocks, "\n"), Hint{HTML: true, Blocks: len(blocks)}
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Reassemble rebuilds markup for text extracted from HTML: every non-blank
// line becomes a <p> element. Text extracted from plain input is returned
// unchanged.
func Reassemble(text string, hint Hint) string {
	if !hint.HTML {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(textEscaper.Replace(line))
		b.WriteString("</p>")
	}
	return b.String()
}
