package rawterm

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetcharTranslatesCR(t *testing.T) {
	term := New(strings.NewReader("a\r"), io.Discard)
	ch, err := term.Getchar()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), ch)
	ch, err = term.Getchar()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), ch)
	_, err = term.Getchar()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLine(t *testing.T) {
	var out bytes.Buffer
	term := New(strings.NewReader("helo\x7flo\r"), &out)

	line, err := term.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(line))
	assert.Equal(t, "helo\b \blo\r\n", out.String())
	assert.False(t, term.Raw())
	assert.NoError(t, term.Restore())
}

func TestReadLineControlKeys(t *testing.T) {
	_, err := New(strings.NewReader("ab\x03"), io.Discard).ReadLine()
	assert.ErrorIs(t, err, ErrInterrupt)

	_, err = New(strings.NewReader("\x04"), io.Discard).ReadLine()
	assert.ErrorIs(t, err, io.EOF)

	line, err := New(strings.NewReader("tail"), io.Discard).ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(line))
}

func TestWriteTranslatesLF(t *testing.T) {
	var out bytes.Buffer
	n, err := New(nil, &out).Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "one\r\ntwo\r\n", out.String())
}
