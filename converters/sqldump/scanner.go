package sqldump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

type tokenKind uint8

const (
	tokEOF       tokenKind = iota
	tokWord                // unquoted identifier or keyword
	tokIdent               // `quoted` identifier
	tokString              // 'string' or "string"
	tokNumber              // 12, -3.5, 1e10
	tokHex                 // X'0F' or 0x0F, text holds the hex digits
	tokBits                // b'0101' or 0b0101, text holds the binary digits
	tokPunct               // ( ) , . = and any other single character
	tokSemicolon
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokWord:
		return "word"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokHex:
		return "hex literal"
	case tokBits:
		return "bit literal"
	case tokPunct:
		return "punctuation"
	case tokSemicolon:
		return "';'"
	}
	return fmt.Sprintf("token(%d)", uint8(k))
}

type token struct {
	kind  tokenKind
	text  string
	quote byte
	line  int
}

func (t token) String() string {
	if t.kind == tokEOF || t.kind == tokSemicolon {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

// is reports whether t is the unquoted keyword kw (case-insensitive).
func (t token) is(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func (t token) isPunct(c byte) bool {
	return t.kind == tokPunct && len(t.text) == 1 && t.text[0] == c
}

// isName reports whether t can name a table or column.
func (t token) isName() bool {
	return t.kind == tokWord || t.kind == tokIdent || (t.kind == tokString && t.quote == '"')
}

// scanner tokenizes a dump stream. It holds at most one token of lookahead and
// the bytes of the token being read, never a whole statement.
type scanner struct {
	br     *bufio.Reader
	line   int
	buf    []byte
	peeked *token
}

func newScanner(r io.Reader) *scanner {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 65536)
	}
	return &scanner{br: br, line: 1}
}

func (s *scanner) truncated(msg string) error {
	return &ParseError{Line: s.line, Msg: msg, Err: ErrTruncatedInput}
}

// readByte returns io.EOF at end of input; other read errors are passed through.
func (s *scanner) readByte() (byte, error) {
	c, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	if c == '\n' {
		s.line++
	}
	return c, nil
}

// peekByte returns the byte at offset n ahead without consuming it.
func (s *scanner) peekByte(n int) (byte, bool) {
	b, err := s.br.Peek(n + 1)
	if err != nil || len(b) <= n {
		return 0, false
	}
	return b[n], true
}

// peek returns the next token without consuming it.
func (s *scanner) peek() (token, error) {
	if s.peeked != nil {
		return *s.peeked, nil
	}
	tok, err := s.scan()
	if err != nil {
		return tok, err
	}
	s.peeked = &tok
	return tok, nil
}

// next consumes and returns the next token.
func (s *scanner) next() (token, error) {
	if s.peeked != nil {
		tok := *s.peeked
		s.peeked = nil
		return tok, nil
	}
	return s.scan()
}

func (s *scanner) scan() (token, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return token{kind: tokEOF, line: s.line}, nil
		}
		return token{}, err
	}

	line := s.line
	c, err := s.readByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return token{kind: tokEOF, line: line}, nil
		}
		return token{}, err
	}

	switch {
	case c == ';':
		return token{kind: tokSemicolon, text: ";", line: line}, nil

	case c == '\'' || c == '"':
		text, err := s.readQuoted(c, true)
		return token{kind: tokString, text: text, quote: c, line: line}, err

	case c == '`':
		text, err := s.readQuoted(c, false)
		return token{kind: tokIdent, text: text, quote: c, line: line}, err

	case isDigit(c):
		return s.readNumber(c, line)

	case c == '.':
		if n, ok := s.peekByte(0); ok && isDigit(n) {
			return s.readNumber(c, line)
		}

	case c == '-' || c == '+':
		n, ok := s.peekByte(0)
		if ok && (isDigit(n) || n == '.') {
			return s.readNumber(c, line)
		}

	case isWordStart(c):
		return s.readWord(c, line)
	}

	return token{kind: tokPunct, text: string(c), line: line}, nil
}

func (s *scanner) skipSpaceAndComments() error {
	for {
		b, err := s.br.Peek(1)
		if len(b) == 0 {
			if err == nil {
				err = io.EOF
			}
			return err
		}

		// only look further ahead when a comment may start here
		c := b[0]
		if c == '-' || c == '/' {
			b, _ = s.br.Peek(3)
		}

		switch {
		case isSpace(c):
			s.readByte()

		case c == '#':
			if err := s.skipLine(); err != nil {
				return err
			}

		case c == '-' && len(b) >= 2 && b[1] == '-' && (len(b) == 2 || isSpace(b[2])):
			// "--" only starts a comment when followed by whitespace
			if err := s.skipLine(); err != nil {
				return err
			}

		case c == '/' && len(b) >= 2 && b[1] == '*':
			s.readByte()
			s.readByte()
			if err := s.skipBlockComment(); err != nil {
				return err
			}

		default:
			return nil
		}
	}
}

func (s *scanner) skipLine() error {
	for {
		c, err := s.readByte()
		if err != nil {
			return err
		}
		if c == '\n' {
			return nil
		}
	}
}

// skipBlockComment consumes through the closing "*/". Executable comments
// (/*!40101 ... */) are skipped like ordinary ones.
func (s *scanner) skipBlockComment() error {
	var prev byte
	for {
		c, err := s.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.truncated("unterminated comment")
			}
			return err
		}
		if prev == '*' && c == '/' {
			return nil
		}
		prev = c
	}
}

// readLine returns the rest of the current line, trimmed. Used for DELIMITER.
func (s *scanner) readLine() (string, error) {
	s.buf = s.buf[:0]
	for {
		c, err := s.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		if c == '\n' {
			break
		}
		s.buf = append(s.buf, c)
	}
	return strings.TrimSpace(string(s.buf)), nil
}

// readQuoted reads up to the closing quote q. A doubled quote stands for one quote
// character. With backslash set, MySQL escape sequences are decoded.
func (s *scanner) readQuoted(q byte, backslash bool) (string, error) {
	s.buf = s.buf[:0]
	for {
		c, err := s.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", s.truncated("unterminated quoted literal")
			}
			return "", err
		}

		if c == '\\' && backslash {
			e, err := s.readByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return "", s.truncated("unterminated escape sequence")
				}
				return "", err
			}
			s.buf = appendEscape(s.buf, e)
			continue
		}

		if c == q {
			if n, ok := s.peekByte(0); ok && n == q {
				s.readByte()
				s.buf = append(s.buf, q)
				continue
			}
			return string(s.buf), nil
		}
		s.buf = append(s.buf, c)
	}
}

func appendEscape(buf []byte, e byte) []byte {
	switch e {
	case '0':
		return append(buf, 0)
	case 'n':
		return append(buf, '\n')
	case 'r':
		return append(buf, '\r')
	case 't':
		return append(buf, '\t')
	case 'b':
		return append(buf, '\b')
	case 'Z':
		return append(buf, 0x1a)
	case '%', '_':
		// LIKE wildcards keep their backslash
		return append(buf, '\\', e)
	}
	return append(buf, e)
}

func (s *scanner) readNumber(first byte, line int) (token, error) {
	if first == '0' {
		if n, ok := s.peekByte(0); ok {
			d, _ := s.peekByte(1)
			switch {
			case (n == 'x' || n == 'X') && isHexDigit(d):
				s.readByte()
				return token{kind: tokHex, text: s.readWhile(isHexDigit), line: line}, nil
			case (n == 'b' || n == 'B') && isBit(d):
				s.readByte()
				return token{kind: tokBits, text: s.readWhile(isBit), line: line}, nil
			}
		}
	}

	s.buf = append(s.buf[:0], first)
	seenDot := first == '.'
	seenExp := false
	for {
		n, ok := s.peekByte(0)
		if !ok {
			break
		}
		switch {
		case isDigit(n):
		case n == '.' && !seenDot && !seenExp:
			seenDot = true
		case (n == 'e' || n == 'E') && !seenExp && s.exponentFollows():
			seenExp = true
			c, _ := s.readByte()
			s.buf = append(s.buf, c)
			if sign, ok := s.peekByte(0); ok && (sign == '+' || sign == '-') {
				c, _ = s.readByte()
				s.buf = append(s.buf, c)
			}
			continue
		default:
			return s.numberToken(line), nil
		}
		c, _ := s.readByte()
		s.buf = append(s.buf, c)
	}
	return s.numberToken(line), nil
}

// exponentFollows reports whether the pending 'e' starts an exponent.
func (s *scanner) exponentFollows() bool {
	n, ok := s.peekByte(1)
	if !ok {
		return false
	}
	if n == '+' || n == '-' {
		n, ok = s.peekByte(2)
	}
	return ok && isDigit(n)
}

// numberToken normalizes the collected literal so it is a valid decimal number
// (".5" becomes "0.5").
func (s *scanner) numberToken(line int) token {
	text := string(s.buf)
	switch {
	case strings.HasPrefix(text, "."):
		text = "0" + text
	case strings.HasPrefix(text, "-."):
		text = "-0" + text[1:]
	case strings.HasPrefix(text, "+."):
		text = "0" + text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	return token{kind: tokNumber, text: text, line: line}
}

func (s *scanner) readWhile(pred func(byte) bool) string {
	s.buf = s.buf[:0]
	for {
		n, ok := s.peekByte(0)
		if !ok || !pred(n) {
			return string(s.buf)
		}
		c, _ := s.readByte()
		s.buf = append(s.buf, c)
	}
}

func (s *scanner) readWord(first byte, line int) (token, error) {
	// X'..' and B'..' literals, N'..' national strings
	if n, ok := s.peekByte(0); ok && n == '\'' {
		switch first {
		case 'x', 'X', 'b', 'B', 'n', 'N':
			s.readByte()
			text, err := s.readQuoted('\'', first == 'n' || first == 'N')
			if err != nil {
				return token{}, err
			}
			switch first {
			case 'x', 'X':
				return token{kind: tokHex, text: text, line: line}, nil
			case 'b', 'B':
				return token{kind: tokBits, text: text, line: line}, nil
			}
			return token{kind: tokString, text: text, quote: '\'', line: line}, nil
		}
	}

	s.buf = append(s.buf[:0], first)
	for {
		n, ok := s.peekByte(0)
		if !ok || !isWordPart(n) {
			break
		}
		c, _ := s.readByte()
		s.buf = append(s.buf, c)
	}
	return token{kind: tokWord, text: string(s.buf), line: line}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isBit(c byte) bool { return c == '0' || c == '1' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isWordStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$' || c == '@' || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c)
}
