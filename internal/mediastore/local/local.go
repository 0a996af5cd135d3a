package local

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	_ "golang.org/x/image/webp"

	"github.com/vbonduro/photographies/internal/mediastore"
)

// LocalMediaStore keeps media on the local filesystem and serves it back under
// publicURL + "/media/".
type LocalMediaStore struct {
	basePath  string
	publicURL string
}

var (
	_ mediastore.MediaStore = (*LocalMediaStore)(nil)
	_ mediastore.Getter     = (*LocalMediaStore)(nil)
)

func NewLocalMediaStore(basePath, publicURL string) (*LocalMediaStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalMediaStore{basePath: basePath, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

func (s *LocalMediaStore) Upload(ctx context.Context, folder string, r io.Reader) (*mediastore.Asset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}

	key := path.Join(strings.Trim(folder, "/"), uuid.NewString()+formatToExt(format))
	filePath, err := s.safeJoin(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return &mediastore.Asset{
		PublicID: key,
		URL:      s.publicURL + "/media/" + key,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

func (s *LocalMediaStore) Get(ctx context.Context, publicID string) (io.ReadCloser, string, error) {
	filePath, err := s.safeJoin(publicID)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", mediastore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return f, extToMimeType(filePath), nil
}

// Delete removes every file it can. Missing files are skipped, matching the
// hosted API which reports them as not found without failing the batch.
func (s *LocalMediaStore) Delete(ctx context.Context, publicIDs []string) error {
	if len(publicIDs) > mediastore.MaxDeleteBatch {
		return fmt.Errorf("%d ids exceeds batch limit %d", len(publicIDs), mediastore.MaxDeleteBatch)
	}
	var result *multierror.Error
	for _, id := range publicIDs {
		filePath, err := s.safeJoin(id)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("failed to delete %s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// safeJoin resolves key relative to basePath and rejects directory traversal.
func (s *LocalMediaStore) safeJoin(key string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func formatToExt(format string) string {
	switch format {
	case "png":
		return ".png"
	case "webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func extToMimeType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
