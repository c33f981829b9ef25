// Package config loads the YAML seed file that bootstraps sequence definitions.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/services"
	"gopkg.in/yaml.v3"
)

// SeedFile represents the structure of the sequences.yaml file.
type SeedFile struct {
	Sequences []SequenceSeed `yaml:"sequences"`
}

// SequenceSeed describes one sequence and its steps in the seed file.
type SequenceSeed struct {
	Name               string     `yaml:"name"`
	Description        string     `yaml:"description"`
	Active             *bool      `yaml:"active"` // Defaults to true
	AutoAssignNewLeads bool       `yaml:"auto_assign_new_leads"`
	Steps              []StepSeed `yaml:"steps"`
}

type StepSeed struct {
	DelayDays   int    `yaml:"delay_days"`
	TriggerTag  string `yaml:"trigger_tag"`
	Subject     string `yaml:"subject"`
	Description string `yaml:"description"`
}

// SequenceStore is the part of the sequence service the seeder needs.
type SequenceStore interface {
	List(ctx context.Context) ([]*models.SequenceDefinition, error)
	Create(ctx context.Context, req services.CreateSequenceRequest) (*models.SequenceDefinition, error)
	Update(ctx context.Context, id string, req services.UpdateSequenceRequest) (*models.SequenceDefinition, error)
	AddStep(ctx context.Context, sequenceID string, req services.AddStepRequest) (*models.SequenceStep, error)
}

// LoadSeed reads and validates a seed file.
func LoadSeed(filepath string) (*SeedFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", filepath, err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML seed: %w", err)
	}

	if err := ValidateSeed(&seed); err != nil {
		return nil, err
	}

	return &seed, nil
}

// ValidateSeed checks names are present and unique and every step is well formed.
func ValidateSeed(seed *SeedFile) error {
	var errs []error

	names := make(map[string]bool, len(seed.Sequences))

	for i, sequence := range seed.Sequences {
		name := strings.TrimSpace(sequence.Name)

		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("sequence %d: name is required", i))
		case names[name]:
			errs = append(errs, fmt.Errorf("sequence %d: duplicate name '%s'", i, name))
		}

		names[name] = true

		for j, step := range sequence.Steps {
			if step.DelayDays < 0 {
				errs = append(errs, fmt.Errorf("sequence '%s' step %d: delay_days cannot be negative", name, j))
			}

			if strings.TrimSpace(step.TriggerTag) == "" {
				errs = append(errs, fmt.Errorf("sequence '%s' step %d: trigger_tag is required", name, j))
			}
		}
	}

	return errors.Join(errs...)
}

// ApplySeed creates every seeded sequence whose name does not exist yet.
// Existing sequences are left untouched, so the seed can run on every start.
func ApplySeed(ctx context.Context, store SequenceStore, seed *SeedFile, logger *slog.Logger) (int, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(existing))
	for _, sequence := range existing {
		known[sequence.Name] = true
	}

	created := 0

	for _, entry := range seed.Sequences {
		name := strings.TrimSpace(entry.Name)
		if known[name] {
			logger.DebugContext(ctx, "seeded sequence already exists", "name", name)

			continue
		}

		sequence, err := store.Create(ctx, services.CreateSequenceRequest{
			Name:               name,
			Description:        entry.Description,
			AutoAssignNewLeads: entry.AutoAssignNewLeads,
		})
		if err != nil {
			return created, fmt.Errorf("failed to seed sequence '%s': %w", name, err)
		}

		for _, step := range entry.Steps {
			_, err := store.AddStep(ctx, sequence.ID, services.AddStepRequest{
				DelayDays:   step.DelayDays,
				TriggerTag:  step.TriggerTag,
				Subject:     step.Subject,
				Description: step.Description,
			})
			if err != nil {
				return created, fmt.Errorf("failed to seed step of '%s': %w", name, err)
			}
		}

		if entry.Active != nil && !*entry.Active {
			_, err := store.Update(ctx, sequence.ID, services.UpdateSequenceRequest{Active: entry.Active})
			if err != nil {
				return created, fmt.Errorf("failed to deactivate seeded sequence '%s': %w", name, err)
			}
		}

		known[name] = true
		created++

		logger.InfoContext(ctx, "sequence seeded", "sequence_id", sequence.ID, "name", name, "steps", len(entry.Steps))
	}

	return created, nil
}
