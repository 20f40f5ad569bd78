package http1

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/indigo-web/utils/arena"
	"github.com/indigo-web/utils/uf"
)

const (
	// DefaultMaxHeadSize caps a request head when NewParser gets no usable limit.
	DefaultMaxHeadSize = 64 * 1024
	initialLineBuffer  = 512
)

// Parser assembles a request head out of an arbitrary sequence of chunks. It
// does no I/O and is not safe for concurrent use: every connection owns its
// own Parser and resets it between requests.
type Parser struct {
	state parserState
	// line holds every byte of the current head that was fed so far, split into
	// one arena segment per line. Its max size bounds the whole head.
	line *arena.Arena[byte]
	head Head
	rest []byte
	err  error
}

func NewParser(maxHeadSize int) *Parser {
	if maxHeadSize <= 0 {
		maxHeadSize = DefaultMaxHeadSize
	}

	return &Parser{
		line: arena.NewArena[byte](min(initialLineBuffer, maxHeadSize), maxHeadSize),
		head: Head{Headers: make(map[string]string)},
	}
}

// Reset drops everything the parser knows about the current request, including
// bytes that arrived after the terminator. Call Rest first to keep them.
func (p *Parser) Reset() {
	p.state = eStartLine
	p.line.Clear()
	p.head = Head{Headers: make(map[string]string)}
	p.rest = nil
	p.err = nil
}

// ProcessChunk feeds data into the parser and resolves as many complete lines
// as are available. Once the head is complete, further data is only stored
// and returned by Rest.
func (p *Parser) ProcessChunk(data []byte) error {
	switch p.state {
	case eFailed:
		return p.err
	case eComplete:
		p.rest = append(p.rest, data...)
		return nil
	}

	for len(data) > 0 {
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.line.Append(data...) {
				return p.fail(ErrHeadTooLarge)
			}

			return nil
		}

		if !p.line.Append(data[:lf]...) {
			return p.fail(ErrHeadTooLarge)
		}

		data = data[lf+1:]

		if err := p.processLine(trimCR(p.line.Finish())); err != nil {
			return p.fail(err)
		}

		if p.state == eComplete {
			p.rest = append(p.rest, data...)
			return nil
		}
	}

	return nil
}

// Complete reports whether the terminating empty line was seen.
func (p *Parser) Complete() bool {
	return p.state == eComplete
}

// Head returns the parsed head, or ErrHeadIncomplete if the terminator has
// not arrived yet.
func (p *Parser) Head() (Head, error) {
	switch p.state {
	case eComplete:
		return p.head, nil
	case eFailed:
		return Head{}, p.err
	default:
		return Head{}, ErrHeadIncomplete
	}
}

// Rest returns the bytes that followed the terminator of the current head.
func (p *Parser) Rest() []byte {
	return p.rest
}

func (p *Parser) processLine(line []byte) error {
	switch p.state {
	case eStartLine:
		// a stray empty line before the start line is ignored
		if len(line) == 0 {
			return nil
		}

		return p.parseStartLine(uf.B2S(line))
	case eHeaderLine:
		if len(line) == 0 {
			p.state = eComplete
			return nil
		}

		return p.parseHeader(uf.B2S(line))
	default:
		panic(fmt.Errorf("BUG: unexpected parser state: %d", p.state))
	}
}

// parseStartLine and parseHeader receive views into the arena, so everything
// they keep must be cloned.
func (p *Parser) parseStartLine(line string) error {
	method, rest, found := strings.Cut(line, " ")
	if !found || len(method) == 0 {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
	}

	path, protocol, found := strings.Cut(rest, " ")
	if !found || len(path) == 0 || len(protocol) == 0 {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
	}

	p.head.Method = strings.Clone(method)
	p.head.Path = strings.Clone(path)
	p.head.Protocol = strings.Clone(protocol)
	p.state = eHeaderLine

	return nil
}

func (p *Parser) parseHeader(line string) error {
	name, value, found := strings.Cut(line, ":")
	if !found || len(name) == 0 {
		return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}

	p.head.Headers[strings.Clone(name)] = strings.Clone(strings.TrimLeft(value, " \t"))

	return nil
}

func (p *Parser) fail(err error) error {
	p.state = eFailed
	p.err = err

	return err
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}

	return line
}
