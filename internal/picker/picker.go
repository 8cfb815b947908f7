// Package picker prompts for selections on an interactive terminal,
// re-prompting until the input is usable.
package picker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrAborted is returned when the input stream closes before a
// selection is made.
var ErrAborted = errors.New("selection aborted")

// Picker reads selections line by line. A single scanner is shared
// across calls so consecutive prompts consume consecutive lines.
type Picker struct {
	out     io.Writer
	scanner *bufio.Scanner
}

func New(in io.Reader, out io.Writer) *Picker {
	return &Picker{out: out, scanner: bufio.NewScanner(in)}
}

// Select shows a numbered list and reads a choice. Both the number and
// the literal option text are accepted; anything else re-prompts.
func (p *Picker) Select(label string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options to select from")
	}

	fmt.Fprintf(p.out, "%s:\n", label)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(p.out, "Select [1-%d]: ", len(options))
		input, err := p.readLine()
		if err != nil {
			return "", err
		}
		if input == "" {
			continue
		}

		if n, err := strconv.Atoi(input); err == nil {
			if n >= 1 && n <= len(options) {
				return options[n-1], nil
			}
			fmt.Fprintf(p.out, "Enter a number between 1 and %d.\n", len(options))
			continue
		}

		lower := strings.ToLower(input)
		for _, opt := range options {
			if strings.ToLower(opt) == lower {
				return opt, nil
			}
		}
		fmt.Fprintf(p.out, "Enter a number between 1 and %d.\n", len(options))
	}
}

// Line prompts for a free-form line, re-prompting while it is blank.
func (p *Picker) Line(label string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		input, err := p.readLine()
		if err != nil {
			return "", err
		}
		if input != "" {
			return input, nil
		}
	}
}

func (p *Picker) readLine() (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrAborted
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// IsTerminal reports whether r reads from an interactive terminal.
func IsTerminal(r io.Reader) bool {
	if f, ok := r.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
