// Package file provides file-based persistence for sequences, steps and assignments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/followup/pkg/persistence"
)

const (
	sequencesDir   = "sequences"
	assignmentsDir = "assignments"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every record is one JSON document; a single lock serializes writers so that
// conditional updates behave as compare-and-set.
type Persistence struct {
	store          *store
	sequenceRepo   *SequenceRepository
	stepRepo       *StepRepository
	assignmentRepo *AssignmentRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:          s,
		sequenceRepo:   &SequenceRepository{store: s},
		stepRepo:       &StepRepository{store: s},
		assignmentRepo: &AssignmentRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists or can be created.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.store.root, 0o750)
	if err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	return nil
}

func (fp *Persistence) SequenceRepository() persistence.SequenceRepository {
	return fp.sequenceRepo
}

func (fp *Persistence) StepRepository() persistence.StepRepository {
	return fp.stepRepo
}

func (fp *Persistence) AssignmentRepository() persistence.AssignmentRepository {
	return fp.assignmentRepo
}

type store struct {
	root string
	mu   sync.RWMutex
}

func (s *store) path(kind, id string) string {
	return filepath.Clean(filepath.Join(s.root, kind, id+".json"))
}

// read decodes the record into v. Missing records return an error matching fs.ErrNotExist.
func (s *store) read(kind, id string, v any) error {
	body, err := os.ReadFile(s.path(kind, id))
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

// write replaces the record through a temp file and rename so readers never
// observe a half-written document.
func (s *store) write(kind, id string, v any) error {
	dir := filepath.Join(s.root, kind)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	err = os.Rename(tmp.Name(), s.path(kind, id))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to commit %s %s: %w", kind, id, err)
	}

	return nil
}

func (s *store) remove(kind, id string) error {
	return os.Remove(s.path(kind, id))
}

// ids lists the identifiers of every stored record of a kind.
func (s *store) ids(kind string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(s.root), kind+"/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(filepath.Base(file), ".json"))
	}

	return ids, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
