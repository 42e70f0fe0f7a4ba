// Package command provides the tokenizer shared by the command-oriented
// formats (Nexus, MEGA, Newick): a rune scanner with position tracking,
// quoted words, nested bracket comments and key=value option lists.
package command

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/core/errors"
)

// Position is a location in the input. Line and Column are 1-based.
type Position struct {
	Offset int64
	Line   int
	Column int
}

// Limits bounds what the scanner buffers.
type Limits struct {
	MaxComment int
	MaxWord    int
	// Truncate cuts oversized comments and words instead of failing.
	Truncate bool
}

// LimitsFrom returns the limits configured in p.
func LimitsFrom(p config.Params) Limits {
	return Limits{MaxComment: p.MaxCommentLength, MaxWord: p.MaxTokenLength, Truncate: p.TruncateOversized}
}

// Statement is the raw text of a command up to its terminator, with
// comments lifted out.
type Statement struct {
	Text     string
	Comments []string
	Pos      Position
}

// Scanner reads runes from a command-oriented document.
type Scanner struct {
	r      *bufio.Reader
	format string
	limits Limits
	pos    Position
	// Truncated is called when a comment or word is cut at its limit.
	Truncated func(what string, pos Position)
}

// NewScanner returns a scanner over r. format names the format in errors.
func NewScanner(r io.Reader, format string, limits Limits) *Scanner {
	return &Scanner{
		r:      bufio.NewReader(r),
		format: format,
		limits: limits,
		pos:    Position{Line: 1, Column: 1},
	}
}

// Pos returns the position of the next rune.
func (s *Scanner) Pos() Position {
	return s.pos
}

// Peek returns the next rune without consuming it.
func (s *Scanner) Peek() (rune, error) {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return 0, err
	}
	_ = s.r.UnreadRune()
	return ch, nil
}

// Read consumes the next rune.
func (s *Scanner) Read() (rune, error) {
	ch, size, err := s.r.ReadRune()
	if err != nil {
		return 0, err
	}
	s.pos.Offset += int64(size)
	if ch == '\n' {
		s.pos.Line++
		s.pos.Column = 1
	} else {
		s.pos.Column++
	}
	return ch, nil
}

// Errorf returns a ParseError at the current position.
func (s *Scanner) Errorf(format string, args ...any) *errors.ParseError {
	return s.ErrorAt(s.pos, format, args...)
}

// ErrorAt returns a ParseError at pos.
func (s *Scanner) ErrorAt(pos Position, format string, args ...any) *errors.ParseError {
	return &errors.ParseError{
		Format:  s.format,
		Offset:  pos.Offset,
		Line:    pos.Line,
		Column:  pos.Column,
		Message: fmt.Sprintf(format, args...),
	}
}

// Locate fills in the position of a ParseError or the line of a
// ReferenceError that has none.
func (s *Scanner) Locate(pos Position, err error) error {
	var pe *errors.ParseError
	if errors.As(err, &pe) && pe.Line == 0 {
		pe.Format = s.format
		pe.Offset, pe.Line, pe.Column = pos.Offset, pos.Line, pos.Column
	}
	var re *errors.ReferenceError
	if errors.As(err, &re) && re.Line == 0 {
		re.Offset, re.Line, re.Column = pos.Offset, pos.Line, pos.Column
	}
	var le *errors.ResourceLimitError
	if errors.As(err, &le) && le.Line == 0 {
		le.Offset, le.Line, le.Column = pos.Offset, pos.Line, pos.Column
	}
	return err
}

// Unexpected converts io.EOF met inside construct into a ParseError at the
// current position. Other errors are returned unchanged.
func (s *Scanner) Unexpected(err error, construct string) error {
	if err == io.EOF {
		return s.Errorf("unexpected end of input inside %s", construct)
	}
	return err
}

// SkipWhitespace consumes whitespace including line breaks. It returns nil
// at end of input.
func (s *Scanner) SkipWhitespace() error {
	for {
		ch, err := s.Peek()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !unicode.IsSpace(ch) {
			return nil
		}
		s.Read()
	}
}

// SkipSpaces consumes blanks but stops before a line break.
func (s *Scanner) SkipSpaces() error {
	for {
		ch, err := s.Peek()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ch == '\n' || ch == '\r' || !unicode.IsSpace(ch) {
			return nil
		}
		s.Read()
	}
}

// AtEOF reports whether the input is exhausted.
func (s *Scanner) AtEOF() bool {
	_, err := s.Peek()
	return err != nil
}

// ReadLine returns the rest of the current line and consumes the line
// break. At end of input it returns what was read and a nil error.
func (s *Scanner) ReadLine() (string, error) {
	pos := s.pos
	c := &capped{max: s.limits.MaxComment}
	for {
		ch, err := s.Read()
		if err == io.EOF || ch == '\n' {
			break
		}
		if err != nil {
			return "", err
		}
		c.add(ch)
	}
	if err := s.overflow(c, "MaxCommentLength", "line", pos); err != nil {
		return "", err
	}
	return strings.TrimRight(c.sb.String(), "\r"), nil
}

// capped collects text up to a limit.
type capped struct {
	sb        strings.Builder
	n         int
	max       int
	truncated bool
}

func (c *capped) add(ch rune) bool {
	c.n++
	if c.max > 0 && c.n > c.max {
		c.truncated = true
		return false
	}
	c.sb.WriteRune(ch)
	return true
}

func (s *Scanner) overflow(c *capped, limit, what string, pos Position) error {
	if !c.truncated {
		return nil
	}
	if s.limits.Truncate {
		if s.Truncated != nil {
			s.Truncated(what, pos)
		}
		return nil
	}
	return &errors.ResourceLimitError{Limit: limit, Value: c.n, Max: c.max, Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
}

// ReadComment consumes a bracket comment, including nested brackets, and
// returns its text without the outer brackets. The next rune must be '['.
func (s *Scanner) ReadComment() (string, error) {
	pos := s.pos
	if ch, err := s.Read(); err != nil || ch != '[' {
		return "", s.ErrorAt(pos, "expected '['")
	}
	c := &capped{max: s.limits.MaxComment}
	depth := 1
	for {
		ch, err := s.Read()
		if err != nil {
			return "", s.Unexpected(err, "comment")
		}
		switch ch {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				if err := s.overflow(c, "MaxCommentLength", "comment", pos); err != nil {
					return "", err
				}
				return c.sb.String(), nil
			}
		}
		c.add(ch)
	}
}

func isQuote(ch rune) bool {
	return ch == '\'' || ch == '"'
}

// ReadWord reads a quoted or unquoted word. An unquoted word ends at
// whitespace, a '[' or any rune in delims, which is not consumed. In a
// quoted word a doubled quote stands for one quote. The second result
// reports whether the word was quoted.
func (s *Scanner) ReadWord(delims string) (string, bool, error) {
	pos := s.pos
	ch, err := s.Peek()
	if err != nil {
		return "", false, err
	}
	c := &capped{max: s.limits.MaxWord}
	if isQuote(ch) {
		if err := s.readQuoted(c); err != nil {
			return "", true, err
		}
		if err := s.overflow(c, "MaxTokenLength", "word", pos); err != nil {
			return "", true, err
		}
		return c.sb.String(), true, nil
	}
	for {
		ch, err := s.Peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		if unicode.IsSpace(ch) || ch == '[' || strings.ContainsRune(delims, ch) {
			break
		}
		s.Read()
		c.add(ch)
	}
	if err := s.overflow(c, "MaxTokenLength", "word", pos); err != nil {
		return "", false, err
	}
	return c.sb.String(), false, nil
}

func (s *Scanner) readQuoted(c *capped) error {
	q, _ := s.Read()
	for {
		ch, err := s.Read()
		if err != nil {
			return s.Unexpected(err, "quoted word")
		}
		if ch == q {
			next, err := s.Peek()
			if err == nil && next == q {
				s.Read()
				c.add(q)
				continue
			}
			return nil
		}
		c.add(ch)
	}
}

// ReadStatement reads up to and including terminator. Comments are
// collected separately and replaced by a blank in Text; quoted words are
// kept verbatim. Text is bounded by the comment limit.
func (s *Scanner) ReadStatement(terminator rune) (Statement, error) {
	st := Statement{Pos: s.pos}
	c := &capped{max: s.limits.MaxComment}
	var quote rune
	for {
		ch, err := s.Peek()
		if err != nil {
			return st, s.Unexpected(err, fmt.Sprintf("command (missing %q)", terminator))
		}
		switch {
		case quote != 0:
			s.Read()
			if ch == quote {
				quote = 0
			}
			c.add(ch)
		case isQuote(ch):
			s.Read()
			quote = ch
			c.add(ch)
		case ch == '[':
			comment, err := s.ReadComment()
			if err != nil {
				return st, err
			}
			st.Comments = append(st.Comments, comment)
			c.add(' ')
		case ch == terminator:
			s.Read()
			if err := s.overflow(c, "MaxCommentLength", "command", st.Pos); err != nil {
				return st, err
			}
			st.Text = strings.TrimSpace(c.sb.String())
			return st, nil
		default:
			s.Read()
			c.add(ch)
		}
	}
}

// Unquote removes surrounding quotes and undoubles inner quotes.
func Unquote(s string) string {
	if len(s) < 2 || !isQuote(rune(s[0])) || s[len(s)-1] != s[0] {
		return s
	}
	q := s[:1]
	return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
}

// Quote returns s as a word legal in command formats. Words containing
// whitespace, punctuation or quotes are wrapped in single quotes.
func Quote(s string, punctuation string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || isQuote(r) || r == '[' || r == ']' || strings.ContainsRune(punctuation, r)
	}) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
