package openai

import (
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"
)

// streamBody adapts an eino message stream to an io.ReadCloser of raw text.
type streamBody struct {
	pr *io.PipeReader
}

func newStreamBody(reader *schema.StreamReader[*schema.Message]) *streamBody {
	pr, pw := io.Pipe()
	go pump(reader, pw)
	return &streamBody{pr: pr}
}

func pump(reader *schema.StreamReader[*schema.Message], pw *io.PipeWriter) {
	defer reader.Close()
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			_ = pw.Close()
			return
		}
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if _, err := io.WriteString(pw, chunk.Content); err != nil {
			// reader side closed
			return
		}
	}
}

func (s *streamBody) Read(p []byte) (int, error) { return s.pr.Read(p) }

// Close stops the pump. The upstream stream is closed once the pump notices.
func (s *streamBody) Close() error {
	return s.pr.Close()
}
