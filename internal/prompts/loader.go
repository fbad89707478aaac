// Package prompts provides a loader for externalized LLM prompt templates.
// Prompts are stored as JSON files and embedded at compile time.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// InputPlaceholder is replaced with the stage input serialized as JSON
const InputPlaceholder = "{input_json}"

//go:embed *.json
var promptFiles embed.FS

// Embedded returns the prompt files compiled into the binary
func Embedded() fs.FS {
	return promptFiles
}

// Cache is a read-through cache of prompt templates keyed by stage name.
// Each JSON file at the root of the filesystem maps stage names to templates.
type Cache struct {
	fsys      fs.FS
	mu        sync.RWMutex
	templates map[string]string
	loaded    bool
}

// NewCache creates a cache over fsys. A nil fsys uses the embedded prompts.
func NewCache(fsys fs.FS) *Cache {
	if fsys == nil {
		fsys = promptFiles
	}
	return &Cache{fsys: fsys, templates: make(map[string]string)}
}

// Get returns the template for a stage, loading the prompt files on first use
func (c *Cache) Get(stage string) (string, error) {
	c.mu.RLock()
	tmpl, ok := c.templates[stage]
	loaded := c.loaded
	c.mu.RUnlock()
	if ok {
		return tmpl, nil
	}
	if loaded {
		return "", fmt.Errorf("prompt %q not found", stage)
	}

	if err := c.load(); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok = c.templates[stage]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", stage)
	}
	return tmpl, nil
}

// Render returns the stage template with the input substituted for {input_json}
func (c *Cache) Render(stage string, input any) (string, error) {
	tmpl, err := c.Get(stage)
	if err != nil {
		return "", err
	}
	return RenderTemplate(tmpl, input)
}

// Reload drops every cached template; the next Get reads the files again
func (c *Cache) Reload() {
	c.mu.Lock()
	c.templates = make(map[string]string)
	c.loaded = false
	c.mu.Unlock()
}

// List returns the stage names with a template, sorted
func (c *Cache) List() ([]string, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Cache) ensureLoaded() error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.load()
}

func (c *Cache) load() error {
	files, err := fs.Glob(c.fsys, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list prompt files: %w", err)
	}

	templates := make(map[string]string)
	for _, name := range files {
		data, err := fs.ReadFile(c.fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read prompt file %s: %w", name, err)
		}
		var entries map[string]string
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse prompt file %s: %w", name, err)
		}
		for key, tmpl := range entries {
			if _, dup := templates[key]; dup {
				return fmt.Errorf("prompt %q defined twice (second in %s)", key, name)
			}
			templates[key] = tmpl
		}
	}

	c.mu.Lock()
	c.templates = templates
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// RenderTemplate substitutes the JSON encoding of input for {input_json}.
// Non-ASCII text and HTML characters are written as-is.
func RenderTemplate(template string, input any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(input); err != nil {
		return "", fmt.Errorf("failed to encode prompt input: %w", err)
	}
	return strings.ReplaceAll(template, InputPlaceholder, strings.TrimRight(buf.String(), "\n")), nil
}
