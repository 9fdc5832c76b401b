// Package catalog loads the system-owned scoring templates. Templates ship
// embedded in the binary and can be extended by an operator-supplied YAML
// file using the same layout.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
)

//go:embed templates/*.yaml
var embedded embed.FS

// document is the YAML layout of a template file.
type document struct {
	Templates []*model.ScoringTemplate `yaml:"templates"`
}

// Decode reads one template document. Unknown keys are rejected so a typo in
// a coefficient name cannot silently drop a mark.
func Decode(r io.Reader) ([]*model.ScoringTemplate, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for _, t := range doc.Templates {
		if t == nil {
			return nil, errors.New("decode templates: empty entry")
		}
		if err := scoring.ValidateTemplate(t); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.ID, err)
		}
		t.SystemOwned = true
	}
	return doc.Templates, nil
}

// System returns the embedded templates ordered by ID.
func System() ([]*model.ScoringTemplate, error) {
	return loadFS(embedded, "templates")
}

// Load returns the embedded templates plus those in file, if file is not
// empty. A template in file replaces an embedded one with the same ID.
func Load(file string) ([]*model.ScoringTemplate, error) {
	base, err := System()
	if err != nil {
		return nil, err
	}
	if file == "" {
		return base, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	extra, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return merge(base, extra), nil
}

func loadFS(fsys fs.FS, dir string) ([]*model.ScoringTemplate, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}
	var all []*model.ScoringTemplate
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		ts, err := Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		all = merge(all, ts)
	}
	return all, nil
}

func merge(base, extra []*model.ScoringTemplate) []*model.ScoringTemplate {
	byID := make(map[string]*model.ScoringTemplate, len(base)+len(extra))
	for _, t := range base {
		byID[t.ID] = t
	}
	for _, t := range extra {
		byID[t.ID] = t
	}
	out := make([]*model.ScoringTemplate, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
