// Package iocli abstracts the interactive terminal used by the client commands.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is the prompt side of the command line: questions go to the user and
// answers come back. Command output itself goes to cobra's writer.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
