package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"thingmirror/pkg/storage"
	"thingmirror/pkg/thingiverse"
)

// FileName is the metadata file written into every thing directory
const FileName = "info.json"

// Thing is the persisted description of a mirrored thing
type Thing struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`

	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Details      string `json:"details"`

	Tags []string `json:"tags"`

	Creator Creator `json:"creator"`
	License string  `json:"license"`
}

// Creator is the persisted thing author
type Creator struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FromAPI converts an API thing to its persisted form. Tags are reduced to
// their display names.
func FromAPI(thing *thingiverse.Thing) *Thing {
	tags := make([]string, 0, len(thing.Tags))
	for _, tag := range thing.Tags {
		tags = append(tags, tag.Name)
	}

	return &Thing{
		ID:           thing.ID,
		Name:         thing.Name,
		Description:  thing.Description,
		Instructions: thing.Instructions,
		Details:      thing.Details,
		Tags:         tags,
		Creator: Creator{
			ID:        thing.Creator.ID,
			Name:      thing.Creator.Name,
			FirstName: thing.Creator.FirstName,
			LastName:  thing.Creator.LastName,
		},
		License: thing.License,
	}
}

// Save writes the metadata as indented JSON into dir
func (t *Thing) Save(dir string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := storage.WriteFile(filepath.Join(dir, FileName), data); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the metadata stored in dir
func Load(dir string) (*Thing, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var thing Thing
	if err := json.Unmarshal(data, &thing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &thing, nil
}
