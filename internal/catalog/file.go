package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/scoring"
)

// FileSource reads a YAML catalog:
//
//	repositories:
//	  - owner: rastion
//	    name: tsp-problem
//	    config:
//	      type: problem
//	      problem_name: tsp
type FileSource struct {
	path string
}

type fileCatalog struct {
	Repositories []fileEntry `yaml:"repositories"`
}

type fileEntry struct {
	Owner       string                 `yaml:"owner"`
	Name        string                 `yaml:"name"`
	ProblemType string                 `yaml:"problem_type"`
	Config      map[string]interface{} `yaml:"config"`
}

// NewFileSource constructs a file backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name identifies the source in logs.
func (s *FileSource) Name() string {
	return models.ProblemSourceFile + ":" + s.path
}

// List parses the catalog file on every call.
func (s *FileSource) List(_ context.Context) ([]models.ProblemRepository, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile decodes a YAML catalog document. Entries whose config cannot be
// converted keep a nil schema and score zero.
func ParseFile(raw []byte) ([]models.ProblemRepository, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	repos := make([]models.ProblemRepository, 0, len(doc.Repositories))
	for _, entry := range doc.Repositories {
		repo := models.ProblemRepository{
			Owner:       entry.Owner,
			Name:        entry.Name,
			ProblemType: entry.ProblemType,
			Source:      models.ProblemSourceFile,
			CreatedBy:   models.SystemUserID,
		}
		if entry.Config != nil {
			if encoded, err := json.Marshal(entry.Config); err == nil {
				if schema, err := scoring.ParseSchema(encoded); err == nil {
					repo.DeclaredSchema.Schema = schema
				}
			}
		}
		repos = append(repos, repo)
	}
	return repos, nil
}
