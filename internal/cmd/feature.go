package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nexus-build/nexus/internal/models"
)

// featureDoc is the on-disk shape of a feature file: either a single
// feature under `feature:`, or a batch under `features:` submitted
// together as one merged plan (coordinator.SubmitFeatures).
type featureDoc struct {
	Feature  *featureYAML  `yaml:"feature"`
	Features []featureYAML `yaml:"features"`
}

type featureYAML struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description"`
	Priority           string   `yaml:"priority"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria"`
}

func (f featureYAML) toModel() models.Feature {
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	priority := models.Priority(f.Priority)
	if priority == "" {
		priority = models.PriorityMust
	}
	return models.Feature{
		ID:                 id,
		Title:              f.Title,
		Description:        f.Description,
		Priority:           priority,
		AcceptanceCriteria: f.AcceptanceCriteria,
		CreatedAt:          time.Now(),
	}
}

// LoadFeatures parses path into one or more Features. A file with a
// `feature:` key yields exactly one; a file with a `features:` key
// yields a batch meant to be submitted together.
func LoadFeatures(path string) ([]models.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature file %s: %w", path, err)
	}

	var doc featureDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feature file %s: %w", path, err)
	}

	if doc.Feature == nil && len(doc.Features) == 0 {
		return nil, fmt.Errorf("feature file %s: must set either 'feature' or 'features'", path)
	}

	var out []models.Feature
	if doc.Feature != nil {
		out = append(out, doc.Feature.toModel())
	}
	for _, f := range doc.Features {
		out = append(out, f.toModel())
	}
	return out, nil
}
