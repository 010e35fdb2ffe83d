package util

import (
	"strings"

	coreutil "github.com/trellis-ai/trellis/backend/internal/util"
)

// StreamCitationParser splits streamed answer chunks into plain content and
// [[path:line:character]] citations. Tokens may arrive split across chunk
// boundaries, so unfinished token prefixes are buffered until the next chunk
// settles them.
type StreamCitationParser struct {
	buffer string
}

func (p *StreamCitationParser) Consume(
	chunk string,
	onContent func(string) error,
	onCitation func(string) error,
) error {
	p.buffer += chunk

	emitContent := func(content string) error {
		if content == "" {
			return nil
		}
		return onContent(content)
	}

	for {
		start := strings.Index(p.buffer, "[[")
		if start == -1 {
			if strings.HasSuffix(p.buffer, "[") {
				if err := emitContent(p.buffer[:len(p.buffer)-1]); err != nil {
					return err
				}
				p.buffer = "["
				return nil
			}

			if err := emitContent(p.buffer); err != nil {
				return err
			}
			p.buffer = ""
			return nil
		}

		if start > 0 {
			if err := emitContent(p.buffer[:start]); err != nil {
				return err
			}
			p.buffer = p.buffer[start:]
		}

		end := strings.Index(p.buffer[2:], "]]")
		if end == -1 {
			return nil
		}
		end += 2

		ref := coreutil.NodeRef(p.buffer[2:end])
		if ref != "" {
			if err := onCitation(ref); err != nil {
				return err
			}
			p.buffer = p.buffer[end+2:]
			continue
		}

		if err := emitContent(p.buffer[:1]); err != nil {
			return err
		}
		p.buffer = p.buffer[1:]
	}
}

// Flush emits whatever buffered text never completed into a citation token.
func (p *StreamCitationParser) Flush(onContent func(string) error) error {
	if p.buffer == "" {
		return nil
	}

	if err := onContent(p.buffer); err != nil {
		return err
	}

	p.buffer = ""
	return nil
}
