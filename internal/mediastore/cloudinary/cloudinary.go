// Package cloudinary stores photographies on Cloudinary.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/vbonduro/photographies/internal/mediastore"
)

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder is the root folder every upload is placed under.
	Folder string
	// APIPrefix overrides the API base URL; empty keeps the SDK default.
	APIPrefix string
}

type Store struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ mediastore.MediaStore = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	if cfg.APIPrefix != "" {
		// Each API copies the configuration at construction.
		cld.Upload.Config.API.UploadPrefix = cfg.APIPrefix
		cld.Admin.Config.API.UploadPrefix = cfg.APIPrefix
	}
	return &Store{cld: cld, folder: cfg.Folder}, nil
}

// Upload streams r to "<root folder>/<folder>".
func (s *Store) Upload(ctx context.Context, folder string, r io.Reader) (*mediastore.Asset, error) {
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{Folder: uploadFolder(s.folder, folder)})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.PublicID == "" {
		return nil, fmt.Errorf("cloudinary upload: empty public id in response")
	}

	url := res.SecureURL
	if url == "" {
		url = res.URL
	}
	return &mediastore.Asset{
		PublicID: res.PublicID,
		URL:      url,
		Width:    res.Width,
		Height:   res.Height,
	}, nil
}

// Delete removes up to mediastore.MaxDeleteBatch uploaded images. Ids that no
// longer exist are reported as not_found by the API and are not an error.
func (s *Store) Delete(ctx context.Context, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	if len(publicIDs) > mediastore.MaxDeleteBatch {
		return fmt.Errorf("cloudinary delete: %d ids exceeds batch limit %d", len(publicIDs), mediastore.MaxDeleteBatch)
	}
	res, err := s.cld.Admin.DeleteAssets(ctx, admin.DeleteAssetsParams{
		AssetType:    api.AssetType("image"),
		DeliveryType: api.DeliveryType("upload"),
		PublicIDs:    publicIDs,
	})
	if err != nil {
		return fmt.Errorf("cloudinary delete: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary delete: %s", res.Error.Message)
	}
	return nil
}

func uploadFolder(root, folder string) string {
	return strings.Trim(path.Join(root, folder), "/")
}
