package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/teslashibe/go-stuffbot/internal/httpc"
)

// Supabase defaults.
const (
	DefaultBucket = "stuff_images_bucket"
	DefaultTable  = "stuff"
)

// SupabaseConfig configures the Supabase backend.
type SupabaseConfig struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"-"`
	Bucket string `yaml:"bucket"`
	Table  string `yaml:"table"`

	HTTPClient *http.Client `yaml:"-"`
}

// Supabase uploads both images to a storage bucket and inserts a row into
// the items table.
type Supabase struct {
	cfg    SupabaseConfig
	client *http.Client
}

// stuffRow is the row shape the web backend reads.
type stuffRow struct {
	FullImageID         string  `json:"full_image_id"`
	PartialImageID      string  `json:"partial_image_id"`
	Class               string  `json:"class"`
	ApproximatePrice    float64 `json:"approximate_price"`
	LocationDescription string  `json:"location_description"`
}

// NewSupabase validates cfg and returns the backend.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("storage: SUPABASE_URL and SUPABASE_KEY are required")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.Client
	}
	return &Supabase{cfg: cfg, client: client}, nil
}

func (s *Supabase) Name() string { return "supabase" }

func (s *Supabase) Save(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	if err := s.upload(ctx, rec.FullName, rec.Full); err != nil {
		return fmt.Errorf("upload full image: %w", err)
	}
	if err := s.upload(ctx, rec.CropName, rec.Crop); err != nil {
		return fmt.Errorf("upload crop: %w", err)
	}

	location := rec.LocationDescription
	if location == "" {
		location = "unknown"
	}
	row, err := json.Marshal(stuffRow{
		FullImageID:         rec.FullName,
		PartialImageID:      rec.CropName,
		Class:               rec.Class,
		LocationDescription: location,
	})
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	headers := s.headers("application/json")
	headers["Prefer"] = "return=minimal"
	if _, err := httpc.Send(ctx, s.client, http.MethodPost, s.cfg.URL+"/rest/v1/"+s.cfg.Table, headers, row); err != nil {
		return fmt.Errorf("insert %s row: %w", s.cfg.Table, err)
	}
	return nil
}

func (s *Supabase) upload(ctx context.Context, name string, data []byte) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.cfg.URL, s.cfg.Bucket, name)
	_, err := httpc.Send(ctx, s.client, http.MethodPost, url, s.headers("image/jpeg"), data)
	return err
}

func (s *Supabase) headers(contentType string) map[string]string {
	return map[string]string{
		"apikey":        s.cfg.Key,
		"Authorization": "Bearer " + s.cfg.Key,
		"Content-Type":  contentType,
	}
}
