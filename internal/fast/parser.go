package fast

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"
)

const delimiter = '\r'

// FrameParser reassembles \r-terminated frames from arbitrary read chunks.
// It is owned by the reader goroutine; only the decode-error flag may be
// toggled from elsewhere.
type FrameParser struct {
	buf                []byte
	ignored            map[string]struct{}
	ignoreDecodeErrors atomic.Bool
	logger             *zap.Logger

	// OnDecodeError is called for every frame that is not valid text
	OnDecodeError func(frame []byte)
}

// NewFrameParser creates a parser that silently drops the given messages
func NewFrameParser(ignored []string, logger *zap.Logger) *FrameParser {
	p := &FrameParser{
		ignored: make(map[string]struct{}, len(ignored)),
		logger:  logger,
	}
	for _, msg := range ignored {
		p.ignored[msg] = struct{}{}
	}
	return p
}

// SetIgnoreDecodeErrors controls whether undecodable frames are dropped with a
// warning (true) or fail the connection (false).
func (p *FrameParser) SetIgnoreDecodeErrors(ignore bool) {
	p.ignoreDecodeErrors.Store(ignore)
}

// Reset discards any partial frame
func (p *FrameParser) Reset() {
	p.buf = nil
}

// Buffered returns the number of bytes held for an incomplete frame
func (p *FrameParser) Buffered() int {
	return len(p.buf)
}

// Feed appends chunk and returns every complete frame it finished, in order.
// Empty frames and ignored messages are dropped. On a fatal decode error the
// frames decoded before it are returned along with the error.
func (p *FrameParser) Feed(chunk []byte) ([]string, error) {
	p.buf = append(p.buf, chunk...)

	var msgs []string
	for {
		pos := bytes.IndexByte(p.buf, delimiter)
		if pos == -1 {
			break
		}

		raw := p.buf[:pos]
		p.buf = p.buf[pos+1:]

		if len(raw) == 0 {
			continue
		}

		if !utf8.Valid(raw) {
			p.logger.Warn("Interference / bad data received", zap.ByteString("data", raw))
			if p.OnDecodeError != nil {
				p.OnDecodeError(raw)
			}
			if p.ignoreDecodeErrors.Load() {
				continue
			}
			return msgs, fmt.Errorf("%w: %q", ErrDecode, raw)
		}

		msg := string(raw)
		if _, ok := p.ignored[msg]; ok {
			continue
		}
		msgs = append(msgs, msg)
	}

	// Let the consumed prefix be collected once nothing is pending
	if len(p.buf) == 0 {
		p.buf = nil
	}

	return msgs, nil
}
