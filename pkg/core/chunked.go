package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/eteran/s3mock/pkg/s3err"
)

// isStreamingPayload reports whether the body uses the AWS SigV4 streaming
// (aws-chunked) framing, signed or unsigned, with or without trailers.
func isStreamingPayload(r *http.Request) bool {
	return strings.HasPrefix(strings.ToUpper(r.Header.Get("X-Amz-Content-Sha256")), "STREAMING-")
}

// chunkedReader decodes an aws-chunked body. Each chunk is framed as
//
//	<size-hex>[;chunk-signature=...]\r\n<data>\r\n
//
// and a zero sized chunk ends the payload. Signatures and trailers are not
// verified.
type chunkedReader struct {
	br        *bufio.Reader
	remaining int64
	done      bool
	err       error
}

func newChunkedReader(body io.Reader) *chunkedReader {
	return &chunkedReader{br: bufio.NewReader(body)}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}

	for c.remaining == 0 {
		size, err := c.readHeader()
		if err != nil {
			return 0, c.fail(err)
		}
		if size == 0 {
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}

	n, err := c.br.Read(p)
	c.remaining -= int64(n)

	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return n, c.fail(fmt.Errorf("read chunk body: %w", err))
	}

	if c.remaining == 0 {
		if err := c.readCRLF(); err != nil {
			// Report the framing error on the next call.
			_ = c.fail(err)
		}
	}

	return n, nil
}

// fail records err as the reader's terminal InvalidRequest error.
func (c *chunkedReader) fail(err error) error {
	c.err = s3err.ErrInvalidRequest.WithMessage("Failed to decode streaming payload").Wrap(err)
	return c.err
}

// readHeader parses the next chunk header and returns the chunk size.
func (c *chunkedReader) readHeader() (int64, error) {
	for {
		line, err := c.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, errors.New("unexpected EOF while reading chunk header")
			}
			return 0, fmt.Errorf("read chunk header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		// Strip any chunk extensions (e.g. ";chunk-signature=...").
		if idx := strings.IndexByte(line, ';'); idx != -1 {
			line = line[:idx]
		}

		sizeHex := strings.TrimSpace(line)
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("parse chunk size %q: %w", sizeHex, err)
		}
		if size < 0 {
			return 0, fmt.Errorf("negative chunk size %q", sizeHex)
		}
		return size, nil
	}
}

func (c *chunkedReader) readCRLF() error {
	if b, err := c.br.ReadByte(); err != nil || b != '\r' {
		if err == nil {
			return fmt.Errorf("expected CR after chunk, got %q", b)
		}
		return fmt.Errorf("read CR after chunk: %w", err)
	}
	if b, err := c.br.ReadByte(); err != nil || b != '\n' {
		if err == nil {
			return fmt.Errorf("expected LF after chunk, got %q", b)
		}
		return fmt.Errorf("read LF after chunk: %w", err)
	}
	return nil
}

// storedContentEncoding removes the aws-chunked transfer coding from a
// Content-Encoding header; what remains describes the object itself.
func storedContentEncoding(header string) string {
	var kept []string
	for _, enc := range strings.Split(header, ",") {
		enc = strings.TrimSpace(enc)
		if enc == "" || strings.EqualFold(enc, "aws-chunked") {
			continue
		}
		kept = append(kept, enc)
	}
	return strings.Join(kept, ",")
}
