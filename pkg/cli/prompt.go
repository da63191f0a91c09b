package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads operator input line by line. One Prompter should own stdin
// for the whole run so buffered input is never split between readers.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal file descriptor, -1 when input is not a terminal
}

// NewPrompter reads from in and writes prompts to out. Secrets are read
// without echo when in is a terminal.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

// ReadLine prints prompt and returns the next line without its terminator.
// A final line without a newline is returned; io.EOF is returned only when
// nothing was read.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadSecret is ReadLine with echo disabled on a terminal.
func (p *Prompter) ReadSecret(prompt string) (string, error) {
	if p.fd < 0 {
		return p.ReadLine(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Confirm asks a yes/no question. Only "y" or "yes" count as yes; a read
// error is returned alongside false.
func (p *Prompter) Confirm(question string) (bool, error) {
	answer, err := p.ReadLine("\n" + question + ": ")
	if err != nil {
		return false, err
	}
	return IsAffirmative(answer), nil
}

// IsAffirmative reports whether answer is "y" or "yes", ignoring case and
// surrounding space.
func IsAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
