package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

// TextParser handles plain text files: every non-blank line is a block
// with a single "text" span.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, name string) ([]blocks.Block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b lineBuilder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.write("text", line)
		b.endLine()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text %s: %w", name, err)
	}
	return b.finish(), nil
}
