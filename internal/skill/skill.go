// Package skill installs the embedded SKILL.md document into an agent
// runtime's skill directory so documentation-driven assistants can
// discover and drive genimage.
package skill

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

//go:embed SKILL.md
var skillContent []byte

// Frontmatter is the YAML header of a SKILL.md document.
type Frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Command     string `yaml:"command"`
}

// State describes how the skill on disk relates to the embedded copy.
type State string

const (
	StateMissing   State = "missing"
	StateInstalled State = "installed"
	StateOutOfDate State = "out-of-date"
)

// Status reports the installation state of the agent skill.
type Status struct {
	State State
	Path  string
	// Frontmatter of the installed document, nil when the file is
	// missing or its header does not parse.
	Frontmatter *Frontmatter
}

// Installer writes the embedded SKILL.md into a skill directory.
type Installer struct {
	Out   io.Writer
	In    io.Reader
	Dir   string // target skill directory; empty means DefaultDir
	Force bool   // overwrite and remove without confirmation
}

// NewInstaller creates an Installer targeting the default directory.
func NewInstaller(out io.Writer, in io.Reader) *Installer {
	return &Installer{Out: out, In: in}
}

// Content returns the embedded SKILL.md document.
func Content() []byte {
	return skillContent
}

// ParseFrontmatter extracts the YAML header from a SKILL.md document.
func ParseFrontmatter(content []byte) (*Frontmatter, error) {
	s := string(content)
	if !strings.HasPrefix(s, "---") {
		return nil, fmt.Errorf("skill document has no frontmatter")
	}
	parts := strings.SplitN(s, "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("skill document has unterminated frontmatter")
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if fm.Name == "" {
		return nil, fmt.Errorf("frontmatter is missing a name")
	}
	return &fm, nil
}

// DefaultDir returns the Claude Code skill directory for genimage.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".claude", "skills", "genimage"), nil
}

func (i *Installer) dir() (string, error) {
	if i.Dir != "" {
		return i.Dir, nil
	}
	return DefaultDir()
}

// Path returns the full path the skill document is installed to.
func (i *Installer) Path() (string, error) {
	dir, err := i.dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "SKILL.md"), nil
}

// Install writes the embedded skill document. An existing file with
// different content is backed up first; on a terminal the user is
// asked before overwriting unless Force is set.
func (i *Installer) Install() error {
	path, err := i.Path()
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(path)
	if err == nil {
		if bytes.Equal(existing, skillContent) {
			fmt.Fprintf(i.Out, "Skill already installed: %s\n", path)
			return nil
		}
		if !i.Force && !i.confirm(fmt.Sprintf("Replace existing skill at %s?", path)) {
			fmt.Fprintln(i.Out, "Skipped")
			return nil
		}
		backupPath, err := backup(path, existing)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		fmt.Fprintf(i.Out, "Backup created: %s\n", backupPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create skill directory: %w", err)
	}
	if err := os.WriteFile(path, skillContent, 0644); err != nil {
		return fmt.Errorf("failed to write skill: %w", err)
	}

	fmt.Fprintf(i.Out, "✓ Installed skill: %s\n", path)
	return nil
}

// Status reports whether the installed skill matches the embedded copy.
func (i *Installer) Status() (*Status, error) {
	path, err := i.Path()
	if err != nil {
		return nil, err
	}

	st := &Status{State: StateMissing, Path: path}
	installed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, err
	}

	if sha256.Sum256(installed) == sha256.Sum256(skillContent) {
		st.State = StateInstalled
	} else {
		st.State = StateOutOfDate
	}
	if fm, err := ParseFrontmatter(installed); err == nil {
		st.Frontmatter = fm
	}
	return st, nil
}

// Uninstall removes the installed skill. The document is backed up
// beside the skill directory first, and the directory itself is
// removed once it is empty.
func (i *Installer) Uninstall() error {
	path, err := i.Path()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(i.Out, "Skill not installed: %s\n", path)
			return nil
		}
		return err
	}

	if !i.Force && !i.confirm(fmt.Sprintf("Remove skill at %s?", path)) {
		fmt.Fprintln(i.Out, "Skipped")
		return nil
	}

	// The backup goes next to the directory so it survives removal.
	backupPath, err := backup(filepath.Dir(path), content)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	fmt.Fprintf(i.Out, "Backup created: %s\n", backupPath)

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove skill: %s: %w", path, err)
	}
	// Only succeeds when nothing else lives in the directory.
	_ = os.Remove(filepath.Dir(path))

	fmt.Fprintf(i.Out, "✓ Removed skill: %s\n", path)
	return nil
}

func (i *Installer) confirm(prompt string) bool {
	if !isTerminal(i.In) {
		return true
	}

	fmt.Fprintf(i.Out, "%s [Y/n] ", prompt)
	reader := bufio.NewReader(i.In)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "" || response == "y" || response == "yes"
}

func backup(path string, content []byte) (string, error) {
	timestamp := time.Now().Format("20060102-150405")
	backupPath := path + ".backup-" + timestamp

	if err := os.WriteFile(backupPath, content, 0644); err != nil {
		return "", err
	}
	return backupPath, nil
}

func isTerminal(r io.Reader) bool {
	if f, ok := r.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
