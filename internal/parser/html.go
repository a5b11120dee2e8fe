package parser

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

// HTMLParser turns HTML into one block per rendered line. The innermost
// open element names each span.
type HTMLParser struct{}

// Elements that start and end a line.
var blockLevel = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "br": true, "caption": true, "dd": true, "details": true,
	"dialog": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"head": true, "header": true, "hr": true, "html": true, "li": true,
	"main": true, "nav": true, "ol": true, "option": true, "p": true,
	"pre": true, "section": true, "summary": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"title": true, "tr": true, "ul": true,
}

// Elements whose content is never text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func (p *HTMLParser) Parse(r io.Reader, name string) ([]blocks.Block, error) {
	z := html.NewTokenizer(r)
	var (
		b     lineBuilder
		stack []string
		skip  int
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse html %s: %w", name, err)
			}
			return b.finish(), nil

		case html.TextToken:
			if skip > 0 {
				continue
			}
			tag := "text"
			if len(stack) > 0 {
				tag = stack[len(stack)-1]
			}
			b.writeCollapsed(tag, string(z.Text()))

		case html.StartTagToken, html.SelfClosingTagToken:
			raw, _ := z.TagName()
			tag := string(raw)
			if blockLevel[tag] {
				b.endLine()
			}
			if tt == html.SelfClosingTagToken || voidElements[tag] {
				continue
			}
			if skipped[tag] {
				skip++
			}
			stack = append(stack, tag)

		case html.EndTagToken:
			raw, _ := z.TagName()
			tag := string(raw)
			if blockLevel[tag] {
				b.endLine()
			}
			// Close the nearest matching element and anything left open inside it.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] != tag {
					continue
				}
				for _, open := range stack[i:] {
					if skipped[open] {
						skip--
					}
				}
				stack = stack[:i]
				break
			}
		}
	}
}
