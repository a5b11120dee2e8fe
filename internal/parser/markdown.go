package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

// MarkdownParser handles Markdown files using goldmark. Each leaf block
// (paragraph, heading, code line) becomes a block tagged with its node
// kind in lower case.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, name string) ([]blocks.Block, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown %s: %w", name, err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var b lineBuilder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		tag := strings.ToLower(n.Kind().String())
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.writeCollapsed(tag, string(seg.Value(src)))
				b.endLine()
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			var sb strings.Builder
			inlineText(n, src, &sb)
			b.writeCollapsed(tag, sb.String())
			b.endLine()
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown %s: %w", name, err)
	}
	return b.finish(), nil
}

// inlineText collects the text content of inline children.
func inlineText(n ast.Node, src []byte, sb *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.Label(src))
		case *ast.RawHTML:
		default:
			inlineText(c, src, sb)
		}
	}
}
