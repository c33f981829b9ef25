package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/followup/pkg/models"
)

// FileDirectory keeps leads in a single JSON array file.
type FileDirectory struct {
	path string
	mu   sync.RWMutex
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: strings.Replace(path, "file://", "", 1)}
}

func (d *FileDirectory) GetLead(_ context.Context, id string) (*models.Lead, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	leads, err := d.load()
	if err != nil {
		return nil, err
	}

	lead, ok := leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, ErrLeadNotFound)
	}

	return lead, nil
}

func (d *FileDirectory) SaveLead(_ context.Context, lead *models.Lead) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	leads, err := d.load()
	if err != nil {
		return err
	}

	leads[lead.ID] = lead

	list := make([]*models.Lead, 0, len(leads))
	for _, l := range leads {
		list = append(list, l)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	body, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leads: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(d.path), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create lead directory: %w", err)
	}

	err = os.WriteFile(d.path, body, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write leads file: %w", err)
	}

	return nil
}

func (d *FileDirectory) load() (map[string]*models.Lead, error) {
	leads := make(map[string]*models.Lead)

	body, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return leads, nil
		}

		return nil, fmt.Errorf("failed to read leads file: %w", err)
	}

	var list []*models.Lead

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal leads file: %w", err)
	}

	for _, lead := range list {
		leads[lead.ID] = lead
	}

	return leads, nil
}
