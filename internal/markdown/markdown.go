// Package markdown turns the small HTML fragments that show up in status
// update bodies into the markdown understood by Reddit and Discord.
package markdown

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Converter handles HTML to Markdown conversion using node traversal
type Converter struct{}

// NewConverter creates a new HTML to Markdown converter
func NewConverter() *Converter {
	return &Converter{}
}

// Convert converts an HTML node to markdown
func (c *Converter) Convert(node *html.Node) string {
	if node == nil {
		return ""
	}
	return c.convertNode(node)
}

// ConvertHTMLString converts an HTML string to markdown
func (c *Converter) ConvertHTMLString(htmlStr string) string {
	if strings.TrimSpace(htmlStr) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	if body := findElement(doc, "body"); body != nil {
		return c.convertChildren(body)
	}
	return c.convertNode(doc)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func (c *Converter) convertNode(node *html.Node) string {
	switch node.Type {
	case html.TextNode:
		return node.Data
	case html.ElementNode:
		return c.convertElement(node)
	case html.DocumentNode:
		return c.convertChildren(node)
	default:
		return ""
	}
}

func (c *Converter) convertElement(node *html.Node) string {
	switch strings.ToLower(node.Data) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(node.Data[1:])
		return block(strings.Repeat("#", level) + " " + strings.TrimSpace(c.convertChildren(node)))
	case "p", "div":
		return block(strings.TrimSpace(c.convertChildren(node)))
	case "strong", "b":
		return wrap("**", c.convertChildren(node))
	case "em", "i":
		return wrap("*", c.convertChildren(node))
	case "code":
		return wrap("`", c.convertChildren(node))
	case "a":
		return c.convertLink(node)
	case "br":
		return "\n"
	case "hr":
		return "\n---\n"
	case "ul", "ol":
		return block(strings.TrimRight(c.convertChildren(node), "\n"))
	case "li":
		return c.convertListItem(node)
	case "script", "style":
		return ""
	default:
		return c.convertChildren(node)
	}
}

func (c *Converter) convertLink(node *html.Node) string {
	content := c.convertChildren(node)
	if content == "" {
		return ""
	}
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, "href") && strings.TrimSpace(attr.Val) != "" {
			return "[" + content + "](" + attr.Val + ")"
		}
	}
	return content
}

func (c *Converter) convertListItem(node *html.Node) string {
	content := strings.TrimSpace(c.convertChildren(node))
	if content == "" {
		return ""
	}
	if node.Parent == nil || !strings.EqualFold(node.Parent.Data, "ol") {
		return "- " + content + "\n"
	}
	index := 1
	for sib := node.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, "li") {
			index++
		}
	}
	return strconv.Itoa(index) + ". " + content + "\n"
}

func (c *Converter) convertChildren(node *html.Node) string {
	var result strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		result.WriteString(c.convertNode(child))
	}
	return result.String()
}

func block(s string) string {
	if s == "" {
		return ""
	}
	return "\n\n" + s + "\n\n"
}

func wrap(marker, s string) string {
	if s == "" {
		return ""
	}
	return marker + s + marker
}

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)
	// markupTags matches the well-formed tags Statuspage emits. Only links
	// carry attributes.
	markupTags = regexp.MustCompile(`(?i)</?(?:b|br|code|div|em|h[1-6]|hr|i|li|ol|p|strong|ul)\s*/?>|<a\s[^<>]*>|</a\s*>`)
)

// Normalize converts an update body to markdown. Bodies without recognised
// markup are only trimmed, so stray angle brackets and line breaks survive.
// If conversion would drop any text, the raw body is used instead.
func Normalize(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	raw := strings.TrimSpace(html.UnescapeString(body))
	if !markupTags.MatchString(body) {
		return raw
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return raw
	}
	want := html.UnescapeString(markupTags.ReplaceAllString(body, ""))
	if collapse(textOf(doc)) != collapse(want) {
		return raw
	}
	c := NewConverter()
	out := doc
	if b := findElement(doc, "body"); b != nil {
		out = b
	}
	md := blankRuns.ReplaceAllString(c.convertChildren(out), "\n\n")
	return strings.TrimSpace(md)
}

// textOf concatenates every text node under n.
func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(textOf(child))
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Quote renders text as a markdown block quote.
func Quote(text string) string {
	return "> " + strings.ReplaceAll(text, "\n", "\n> ")
}
