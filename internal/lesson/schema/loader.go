package schema

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ParseDocument decodes and validates a YAML or JSON module document.
func ParseDocument(data []byte) (Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("decoding module document: %w", err)
	}
	if err := Validate(raw); err != nil {
		return Document{}, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding module document: %w", err)
	}
	if err := checkNames(doc.Fields); err != nil {
		return Document{}, fmt.Errorf("module %s: %w", doc.ModuleID, err)
	}
	for _, f := range doc.Fields {
		if !f.Type.Known() {
			slog.Warn("unknown field type, field will not render",
				"module_id", doc.ModuleID,
				"field", f.Name,
				"type", string(f.Type),
			)
		}
	}
	return doc, nil
}

// Loader loads and caches module documents from the filesystem.
type Loader struct {
	rootDir string
	modules map[string]Document
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every module document under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		modules: make(map[string]Document),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading modules: %w", err)
	}

	slog.Info("modules loaded", "modules", len(l.modules), "dir", rootDir)
	return l, nil
}

// GetModule returns a module document by ID.
func (l *Loader) GetModule(id string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.modules[id]
	return d, ok
}

// CourseModules returns the modules of a course ordered by position.
func (l *Loader) CourseModules(courseID string) []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var docs []Document
	for _, d := range l.modules {
		if d.CourseID == courseID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Position != docs[j].Position {
			return docs[i].Position < docs[j].Position
		}
		return docs[i].ModuleID < docs[j].ModuleID
	})
	return docs
}

// AllModules returns every loaded module.
func (l *Loader) AllModules() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	docs := make([]Document, 0, len(l.modules))
	for _, d := range l.modules {
		docs = append(docs, d)
	}
	return docs
}

func (l *Loader) loadAll() error {
	// Documents first, notes second: notes attach to an already loaded module.
	var notes []string
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".notes.md"):
			notes = append(notes, path)
		case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".json"):
			return l.loadModule(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range notes {
		if err := l.loadNotes(path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadModule(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	doc, err := ParseDocument(data)
	if err != nil {
		slog.Warn("skipping invalid module document", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.modules[doc.ModuleID] = doc
	l.mu.Unlock()

	return nil
}

// loadNotes attaches a markdown notes file to the module document that shares
// its base name (intro.notes.md -> intro.yaml).
func (l *Loader) loadNotes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(path, ".notes.md")
	var docData []byte
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		if b, err := os.ReadFile(base + ext); err == nil {
			docData = b
			break
		}
	}
	if docData == nil {
		return nil
	}

	var partial struct {
		ModuleID string `yaml:"module_id"`
	}
	if err := yaml.Unmarshal(docData, &partial); err != nil || partial.ModuleID == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.modules[partial.ModuleID]
	if !ok {
		return nil
	}
	if doc.Notes == "" {
		doc.Notes = string(data)
		l.modules[partial.ModuleID] = doc
	}
	return nil
}
