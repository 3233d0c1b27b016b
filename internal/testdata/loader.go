package testdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Loader handles loading run requests from files
type Loader struct {
	dir string
}

// NewLoader creates a new run request loader
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadRunRequest loads a run request by file name or by sequence name.
// A bare name is looked up as <name>.json, then <name>.yaml and <name>.yml.
func (l *Loader) LoadRunRequest(name string) (*types.RunRequest, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = []string{name + ".json", name + ".yaml", name + ".yml"}
	}

	var lastErr error
	for _, candidate := range candidates {
		req, err := l.loadFromFile(candidate)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no run request found for %q: %w", name, lastErr)
}

func (l *Loader) loadFromFile(filename string) (*types.RunRequest, error) {
	path := filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.dir, filename)
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var req types.RunRequest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &req)
	default:
		err = json.Unmarshal(file, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse run request %s: %w", path, err)
	}

	if req.Name == "" {
		req.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
