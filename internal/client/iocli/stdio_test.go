package iocli

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestPrintlnAndPrintf(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader(""), &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s", 1, "abc")
	_, err := stdio.Write([]byte("!"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc!", out.String())
}

func TestReadInput(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader("  user input \nsecond\n"), &out)

	first, err := stdio.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", first)

	second, err := stdio.ReadInput("Again: ")
	require.NoError(t, err)
	assert.Equal(t, "second", second)
	assert.Equal(t, "Prompt: Again: ", out.String())
}

// Последняя строка без перевода строки тоже читается
func TestReadInput_LastLineWithoutNewline(t *testing.T) {
	stdio := New(strings.NewReader("tail"), io.Discard)

	got, err := stdio.ReadInput("> ")
	require.NoError(t, err)
	assert.Equal(t, "tail", got)

	_, err = stdio.ReadInput("> ")
	assert.ErrorIs(t, err, io.EOF)
}

// Pipe не терминал, поэтому пароль читается как обычная строка
func TestReadPassword_FromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		_, _ = w.Write([]byte("secret-password\n"))
		_ = w.Close()
	}()
	defer func() { _ = r.Close() }()

	var out bytes.Buffer
	stdio := New(r, &out)

	got, err := stdio.ReadPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "secret-password", got)
	assert.Equal(t, "Password: \n", out.String())
}
