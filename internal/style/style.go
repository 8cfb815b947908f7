package style

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed styles/*.md
var builtinFS embed.FS

var (
	ErrUnknownStyle = errors.New("unknown style")
	ErrEmptyStyle   = errors.New("style file is empty")
)

// Style is a named visual style. Prompt is the backing file's content,
// used verbatim as the style line of an assembled prompt.
type Style struct {
	Name   string
	Prompt string
	Source string
}

// Catalog resolves style names against the built-in set and an
// optional override directory whose *.md files shadow or extend the
// built-ins. Files are read on first Get, never at construction.
type Catalog struct {
	overrideDir string

	mu    sync.Mutex
	cache map[string]Style
}

func NewCatalog(overrideDir string) *Catalog {
	return &Catalog{
		overrideDir: overrideDir,
		cache:       make(map[string]Style),
	}
}

// Names returns the available style names, sorted. Only directory
// listings are touched; no style content is loaded.
func (c *Catalog) Names() []string {
	seen := make(map[string]bool)

	entries, _ := fs.ReadDir(builtinFS, "styles")
	for _, e := range entries {
		if name, ok := styleName(e); ok {
			seen[name] = true
		}
	}

	if c.overrideDir != "" {
		if entries, err := os.ReadDir(c.overrideDir); err == nil {
			for _, e := range entries {
				if name, ok := styleName(e); ok {
					seen[name] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func styleName(e fs.DirEntry) (string, bool) {
	if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
		return "", false
	}
	return strings.TrimSuffix(e.Name(), ".md"), true
}

// Get loads the style with the given name, reading its file on the
// first request and caching afterwards.
func (c *Catalog) Get(name string) (Style, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Style{}, c.unknown(name)
	}

	c.mu.Lock()
	if st, ok := c.cache[name]; ok {
		c.mu.Unlock()
		return st, nil
	}
	c.mu.Unlock()

	st, err := c.load(name)
	if err != nil {
		return Style{}, err
	}

	c.mu.Lock()
	c.cache[name] = st
	c.mu.Unlock()
	return st, nil
}

func (c *Catalog) load(name string) (Style, error) {
	if c.overrideDir != "" {
		path := filepath.Join(c.overrideDir, name+".md")
		data, err := os.ReadFile(path)
		if err == nil {
			return newStyle(name, path, data)
		}
		if !os.IsNotExist(err) {
			return Style{}, fmt.Errorf("read style %q: %w", name, err)
		}
	}

	data, err := builtinFS.ReadFile("styles/" + name + ".md")
	if err != nil {
		return Style{}, c.unknown(name)
	}
	return newStyle(name, "builtin", data)
}

func (c *Catalog) unknown(name string) error {
	return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownStyle, name, strings.Join(c.Names(), ", "))
}

func newStyle(name, source string, data []byte) (Style, error) {
	// Only the trailing newline is a file artifact; everything else is
	// the prompt, verbatim.
	prompt := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(prompt) == "" {
		return Style{}, fmt.Errorf("%w: %s", ErrEmptyStyle, name)
	}
	return Style{Name: name, Prompt: prompt, Source: source}, nil
}

// List loads every available style, sorted by name.
func (c *Catalog) List() ([]Style, error) {
	names := c.Names()
	styles := make([]Style, 0, len(names))
	for _, name := range names {
		st, err := c.Get(name)
		if err != nil {
			return nil, err
		}
		styles = append(styles, st)
	}
	return styles, nil
}

// Preview returns the first line of a style prompt cut to max
// characters, for table display.
func Preview(s Style, max int) string {
	line := s.Prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if len(runes) <= max {
		return line
	}
	return string(runes[:max-3]) + "..."
}
