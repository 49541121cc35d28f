package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fahmaliyi/volcred/credential"
	"golang.org/x/term"
)

// ReadPasswordMasked reads a password from the terminal in raw mode, echoing
// '*' per character. Ctrl+C returns ErrCancelled.
func ReadPasswordMasked(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	defer term.Restore(fd, state)
	return readMasked(os.Stdin, os.Stdout)
}

func readMasked(in io.Reader, out io.Writer) ([]byte, error) {
	var input []rune
	for {
		var buf [1]byte
		if _, err := in.Read(buf[:]); err != nil {
			fmt.Fprint(out, "\r\n")
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		c := buf[0]

		switch c {
		case 13, 10: // Enter
			fmt.Fprint(out, "\r\n")
			return []byte(string(input)), nil
		case 127, 8: // Backspace
			if len(input) > 0 {
				input = input[:len(input)-1]
				fmt.Fprint(out, "\b \b")
			}
		case 3: // Ctrl+C
			fmt.Fprint(out, "\r\n")
			return nil, ErrCancelled
		default:
			r, _ := utf8.DecodeRune(buf[:])
			input = append(input, r)
			fmt.Fprint(out, "*")
		}
	}
}

// readLine prints prompt and returns the trimmed next line of r.
func readLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// parseKeyfiles splits a comma separated keyfile list. An empty string is no keyfiles.
func parseKeyfiles(s string) credential.KeyfileList {
	var out credential.KeyfileList
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePIM accepts an empty string as the default PIM.
func parsePIM(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("PIM must be a non-negative number, got %q", s)
	}
	return n, nil
}

// LinePrompt asks yes/no questions on a line-oriented stream. Anything but
// an explicit yes is a no.
type LinePrompt struct {
	In  *bufio.Reader
	Out io.Writer
}

func (p LinePrompt) Ask(message string) bool {
	answer, err := readLine(p.In, p.Out, message+" [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
