// Package storage saves captured object images and their metadata.
//
// Saving is a side output of the control loop: a failed upload is logged by
// the Uploader and never reaches the tick that produced it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
)

// DefaultQuality is the JPEG quality used for stored images.
const DefaultQuality = 90

var (
	ErrEmptyRecord = errors.New("storage: record has no images")
	ErrClosed      = errors.New("storage: closed")
	ErrQueueFull   = errors.New("storage: queue full")
)

// Store persists records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Name() string
}

// Record is one captured object: the annotated frame, the padded crop and
// what was known about the object when it was first seen.
type Record struct {
	ID                  string    `json:"id"`
	ObjectID            string    `json:"object_id"`
	Class               string    `json:"class"`
	Confidence          float64   `json:"confidence"`
	Distance            float64   `json:"distance_m"`
	Mode                mode.Mode `json:"mode"`
	CapturedAt          time.Time `json:"captured_at"`
	FullName            string    `json:"full_image"`
	CropName            string    `json:"crop_image"`
	LocationDescription string    `json:"location_description,omitempty"`

	Full []byte `json:"-"`
	Crop []byte `json:"-"`
}

// NewRecord encodes an observation into a record.
func NewRecord(obs tracking.Observation, distance float64, m mode.Mode, quality int) (*Record, error) {
	if obs.Full == nil || obs.Crop == nil {
		return nil, ErrEmptyRecord
	}
	if quality <= 0 {
		quality = DefaultQuality
	}

	full, err := frame.EncodeJPEG(obs.Full, quality)
	if err != nil {
		return nil, fmt.Errorf("encode full image: %w", err)
	}
	crop, err := frame.EncodeJPEG(obs.Crop, quality)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	id := uuid.NewString()
	return &Record{
		ID:         id,
		ObjectID:   obs.Object.ID,
		Class:      obs.Object.Class,
		Confidence: obs.Object.Confidence,
		Distance:   distance,
		Mode:       m,
		CapturedAt: obs.CapturedAt,
		FullName:   id + "_full.jpg",
		CropName:   id + "_crop.jpg",
		Full:       full,
		Crop:       crop,
	}, nil
}

func (r *Record) validate() error {
	if r == nil || len(r.Full) == 0 || len(r.Crop) == 0 {
		return ErrEmptyRecord
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FullName == "" {
		r.FullName = r.ID + "_full.jpg"
	}
	if r.CropName == "" {
		r.CropName = r.ID + "_crop.jpg"
	}
	return nil
}
