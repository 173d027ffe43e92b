package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Disk writes each record as two JPEG files plus a JSON sidecar.
type Disk struct {
	Dir string
}

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: disk directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Disk{Dir: dir}, nil
}

func (d *Disk) Name() string { return "disk" }

func (d *Disk) Save(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(d.Dir, rec.FullName), rec.Full, 0644); err != nil {
		return fmt.Errorf("write full image: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Dir, rec.CropName), rec.Crop, 0644); err != nil {
		return fmt.Errorf("write crop: %w", err)
	}

	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(d.Dir, rec.ID+".json"), meta, 0644)
}
