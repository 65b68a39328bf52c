// Package prompt loads task-indexed system/user prompt templates from
// embedded YAML files and renders them with named placeholders.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var templateFS embed.FS

// Registry holds one game's prompt files: file name (without extension) to
// a mapping of template keys.
type Registry struct {
	files map[string]map[string]string
}

// loadRegistry reads every *.yml under templates/<dir>.
func loadRegistry(dir string) (*Registry, error) {
	entries, err := fs.ReadDir(templateFS, path.Join("templates", dir))
	if err != nil {
		return nil, fmt.Errorf("read prompt dir %s: %w", dir, err)
	}

	files := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := templateFS.ReadFile(path.Join("templates", dir, name))
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		var mapping map[string]string
		if err := yaml.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("parse prompt file %s: %w", name, err)
		}
		files[strings.TrimSuffix(name, ".yml")] = mapping
	}
	return &Registry{files: files}, nil
}

// Get returns the template under file/key, empty when absent.
func (r *Registry) Get(file, key string) string {
	return r.files[file][key]
}

// Len returns the number of loaded files.
func (r *Registry) Len() int {
	return len(r.files)
}

// Render substitutes {name} placeholders with vars. Doubled braces are
// literals: {{ renders {, }} renders }. Unknown placeholders pass through
// unchanged so rendering is idempotent.
func Render(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			name := template[i+1 : i+end]
			if value, ok := vars[name]; ok {
				b.WriteString(value)
			} else {
				b.WriteString(template[i : i+end+1])
			}
			i += end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
