// Package rawterm provides a raw terminal for the interactive console. It
// reads the keyboard one character at a time and writes text with terminal
// newlines.
//
// Newlines are always LF (not CR or CRLF). While terminals generally use a
// different format (CR when pressing the enter key and CRLF for newline) the
// format returned by Getchar and ReadLine and expected by Write is a single
// LF as newline symbol.
package rawterm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

// ErrInterrupt is returned by ReadLine when Ctrl-C is pressed.
var ErrInterrupt = errors.New("rawterm: interrupted")

const (
	keyInterrupt = 0x03
	keyEOF       = 0x04
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// Terminal reads from in and writes to out. When in is a terminal it is put
// in raw mode until Restore is called.
type Terminal struct {
	in    io.Reader
	out   io.Writer
	fd    int
	state *terminal.State
}

// Open configures stdin for raw reading. It must be restored after use:
//
//	term, err := rawterm.Open()
//	if err != nil {
//		return err
//	}
//	defer term.Restore()
func Open() (*Terminal, error) {
	t := New(os.Stdin, os.Stdout)
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return t, nil
	}
	state, err := terminal.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("rawterm: %w", err)
	}
	t.fd, t.state = fd, state
	return t, nil
}

// New returns a Terminal on arbitrary streams, without raw mode.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Raw reports whether the terminal was put in raw mode.
func (t *Terminal) Raw() bool {
	return t.state != nil
}

// Restore restores the state from before Open.
func (t *Terminal) Restore() error {
	if t.state == nil {
		return nil
	}
	state := t.state
	t.state = nil
	return terminal.Restore(t.fd, state)
}

// Getchar returns a single character. Newlines are encoded with a single LF
// ('\n').
func (t *Terminal) Getchar() (byte, error) {
	var b [1]byte
	for {
		n, err := t.in.Read(b[:])
		if n == 1 {
			if b[0] == '\r' {
				return '\n', nil
			}
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// ReadLine reads characters up to a newline, echoing them and handling
// backspace. The newline is not part of the result. Ctrl-C returns
// ErrInterrupt and Ctrl-D on an empty line returns io.EOF.
func (t *Terminal) ReadLine() ([]byte, error) {
	var line []byte
	for {
		ch, err := t.Getchar()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		switch ch {
		case '\n':
			t.Write([]byte{'\n'})
			return line, nil
		case keyInterrupt:
			return nil, ErrInterrupt
		case keyEOF:
			if len(line) == 0 {
				return nil, io.EOF
			}
		case keyBackspace, keyDelete:
			if len(line) > 0 {
				line = line[:len(line)-1]
				t.Write([]byte("\b \b"))
			}
		default:
			line = append(line, ch)
			t.Write([]byte{ch})
		}
	}
}

// Write writes p translating every LF to CRLF. It returns len(p) on
// success.
func (t *Terminal) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+8)
	for _, ch := range p {
		if ch == '\n' {
			// Terminals expect CRLF.
			buf = append(buf, '\r')
		}
		buf = append(buf, ch)
	}
	if _, err := t.out.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}
