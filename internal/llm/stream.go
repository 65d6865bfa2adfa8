package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// maxLineBytes bounds a single SSE line
const maxLineBytes = 1 << 20

// StreamParser handles parsing of Server-Sent Events (SSE) streams
type StreamParser struct {
	scanner *bufio.Scanner
}

// NewStreamParser creates a new stream parser
func NewStreamParser(reader io.Reader) *StreamParser {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &StreamParser{
		scanner: scanner,
	}
}

// StreamChunk represents a single chunk from the stream
type StreamChunk struct {
	Content      string
	FinishReason string
	Done         bool
}

// Next reads the next chunk from the stream
func (p *StreamParser) Next() (*StreamChunk, error) {
	for p.scanner.Scan() {
		line := p.scanner.Text()

		// comments (": OPENROUTER PROCESSING") and event fields are skipped
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if data == "[DONE]" {
			return &StreamChunk{Done: true}, nil
		}

		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue
		}

		if resp.Error != nil {
			return nil, &upstreamError{message: resp.Error.Message}
		}

		if len(resp.Choices) > 0 {
			choice := resp.Choices[0]
			return &StreamChunk{
				Content:      choice.Delta.Content,
				FinishReason: choice.FinishReason,
				Done:         choice.FinishReason != "",
			}, nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}

	return &StreamChunk{Done: true}, nil
}

// Collect reads the whole stream and returns the concatenated content
func (p *StreamParser) Collect() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := p.Next()
		if err != nil {
			return "", err
		}

		// the final chunk may still carry content
		sb.WriteString(chunk.Content)

		if chunk.Done {
			return sb.String(), nil
		}
	}
}
