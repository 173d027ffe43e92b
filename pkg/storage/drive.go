package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveConfig configures the Google Drive backend. The token file is the
// JSON-encoded oauth2 token written by a previous consent flow.
type DriveConfig struct {
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	TokenPath    string `yaml:"token_path"`
	FolderID     string `yaml:"folder_id"`

	// Options are passed to drive.NewService after the token source.
	Options []option.ClientOption `yaml:"-"`
}

// Drive uploads each record's images and metadata into a Drive folder.
type Drive struct {
	service *drive.Service
	folder  string
}

// NewDrive loads the stored token and builds the Drive service.
func NewDrive(ctx context.Context, cfg DriveConfig) (*Drive, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("storage: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.TokenPath == "" {
		home, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(home, ".stuffbot", "google_token.json")
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{drive.DriveFileScope},
		Endpoint:     google.Endpoint,
	}

	opts := append([]option.ClientOption{
		option.WithTokenSource(oauthConfig.TokenSource(ctx, token)),
	}, cfg.Options...)

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{service: service, folder: cfg.FolderID}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read google token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse google token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("google token at %s is empty", path)
	}
	return &token, nil
}

func (d *Drive) Name() string { return "drive" }

func (d *Drive) Save(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	uploads := []struct {
		name, mime string
		data       []byte
	}{
		{rec.FullName, "image/jpeg", rec.Full},
		{rec.CropName, "image/jpeg", rec.Crop},
		{rec.ID + ".json", "application/json", meta},
	}
	for _, u := range uploads {
		if err := d.upload(ctx, u.name, u.mime, u.data); err != nil {
			return fmt.Errorf("upload %s: %w", u.name, err)
		}
	}
	return nil
}

func (d *Drive) upload(ctx context.Context, name, mime string, data []byte) error {
	file := &drive.File{Name: name, MimeType: mime}
	if d.folder != "" {
		file.Parents = []string{d.folder}
	}
	_, err := d.service.Files.Create(file).Media(bytes.NewReader(data)).Fields("id").Context(ctx).Do()
	return err
}
