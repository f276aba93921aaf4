package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/html"
)

func TestConverter_ConvertHTMLString(t *testing.T) {
	converter := NewConverter()

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{name: "empty string", html: "", expected: ""},
		{name: "whitespace only", html: "   \n\t  ", expected: ""},
		{name: "simple text", html: "Hello World", expected: "Hello World"},
		{name: "paragraph", html: "<p>Hello World</p>", expected: "\n\nHello World\n\n"},
		{name: "heading 2", html: "<h2>Heading 2</h2>", expected: "\n\n## Heading 2\n\n"},
		{name: "strong text", html: "<strong>Bold text</strong>", expected: "**Bold text**"},
		{name: "bold text", html: "<b>Bold text</b>", expected: "**Bold text**"},
		{name: "italic text", html: "<i>Italic text</i>", expected: "*Italic text*"},
		{name: "link", html: `<a href="https://example.com">Example</a>`, expected: "[Example](https://example.com)"},
		{name: "link without href", html: "<a>Just text</a>", expected: "Just text"},
		{name: "line break", html: "a<br>b", expected: "a\nb"},
		{name: "inline code", html: "<code>gateway</code>", expected: "`gateway`"},
		{name: "ordered list", html: "<ol><li>one</li><li>two</li></ol>", expected: "\n\n1. one\n2. two\n\n"},
		{name: "unordered list", html: "<ul><li>one</li><li>two</li></ul>", expected: "\n\n- one\n- two\n\n"},
		{name: "script dropped", html: "hi<script>alert(1)</script>", expected: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, converter.ConvertHTMLString(tt.html))
		})
	}
}

func TestConverter_Convert(t *testing.T) {
	converter := NewConverter()
	assert.Equal(t, "", converter.Convert(nil))
	assert.Equal(t, "Hello World", converter.Convert(&html.Node{Type: html.TextNode, Data: "Hello World"}))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "plain text keeps line breaks",
			body:     "  We are investigating.\n\nMore soon.  ",
			expected: "We are investigating.\n\nMore soon.",
		},
		{
			name:     "windows line endings",
			body:     "a\r\nb",
			expected: "a\nb",
		},
		{
			name:     "entities are decoded",
			body:     "Voice &amp; video degraded",
			expected: "Voice & video degraded",
		},
		{
			name:     "statuspage link markup",
			body:     `Follow <a href="https://twitter.com/discord">@discord</a> for updates.<br><br><br>Thanks`,
			expected: "Follow [@discord](https://twitter.com/discord) for updates.\n\nThanks",
		},
		{
			name:     "unclosed angle bracket is text",
			body:     "latency <b and rising\nmore",
			expected: "latency <b and rising\nmore",
		},
		{
			name:     "bracketed error code is kept",
			body:     "Users may see <Error 500> when loading.",
			expected: "Users may see <Error 500> when loading.",
		},
		{
			name:     "markup mixed with a stray tag falls back to raw",
			body:     "<b>Degraded</b> API latency <b and rising.\nNext update in 30 minutes.",
			expected: "<b>Degraded</b> API latency <b and rising.\nNext update in 30 minutes.",
		},
		{
			name:     "comparison in text with markup",
			body:     "Error rate is <strong>high</strong> but 2 < 3 & falling",
			expected: "Error rate is **high** but 2 < 3 & falling",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.body))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "> one\n> two", Quote("one\ntwo"))
	assert.Equal(t, "> single", Quote("single"))
}
