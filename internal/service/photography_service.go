package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/photographies/internal/code"
	"github.com/vbonduro/photographies/internal/domain"
	"github.com/vbonduro/photographies/internal/mediastore"
)

// photographyRepository is the record store contract PhotographyService
// requires. Both store.PhotographyStore and store.PostgresPhotographyStore
// satisfy it.
type photographyRepository interface {
	Create(ctx context.Context, p *domain.Photography) (*domain.Photography, error)
	CreateMany(ctx context.Context, ps []*domain.Photography) ([]*domain.Photography, error)
	ListCodes(ctx context.Context) ([]string, error)
	List(ctx context.Context, order domain.SortOrder) ([]*domain.Photography, error)
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Photography, error)
	GetByID(ctx context.Context, id string) (*domain.Photography, error)
	GetByCode(ctx context.Context, code string) (*domain.Photography, error)
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

const (
	DefaultCodeLength       = 3
	DefaultCodeMaxLength    = 6
	DefaultMaxAttempts      = 1000
	DefaultMaxCreateRetries = 5
)

type Options struct {
	// Folder is the media folder uploads are placed in.
	Folder string
	// CodeLength is the length codes start at; it grows by one, up to
	// CodeMaxLength, whenever MaxAttempts draws fail to find a free code.
	CodeLength    int
	CodeMaxLength int
	MaxAttempts   int
	// MaxCreateRetries bounds how often a create is retried after the store
	// reports the chosen code was taken by a concurrent request.
	MaxCreateRetries int
	Banned           code.Set
}

func (o Options) withDefaults() Options {
	if o.CodeLength <= 0 {
		o.CodeLength = DefaultCodeLength
	}
	if o.CodeMaxLength < o.CodeLength {
		o.CodeMaxLength = max(DefaultCodeMaxLength, o.CodeLength)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxCreateRetries <= 0 {
		o.MaxCreateRetries = DefaultMaxCreateRetries
	}
	if o.Banned == nil {
		o.Banned = code.DefaultBanned()
	}
	return o
}

// Upload is one image received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

type PhotographyService struct {
	repo   photographyRepository
	media  mediastore.MediaStore
	gen    code.Generator
	logger *slog.Logger
	opts   Options
}

func NewPhotographyService(
	repo photographyRepository,
	media mediastore.MediaStore,
	gen code.Generator,
	logger *slog.Logger,
	opts Options,
) *PhotographyService {
	return &PhotographyService{
		repo:   repo,
		media:  media,
		gen:    gen,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// UploadPhotography uploads the image, assigns it an unused code and stores
// the record. When the record cannot be stored the uploaded media is left in
// place and logged as orphaned.
func (s *PhotographyService) UploadPhotography(ctx context.Context, up Upload) (*domain.Photography, error) {
	s.logger.Info("upload photography started", "filename", up.Filename, "bytes", len(up.Data))

	asset, err := s.upload(ctx, up)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("media uploaded", "public_id", asset.PublicID, "width", asset.Width, "height", asset.Height)

	used, err := s.usedCodes(ctx)
	if err != nil {
		s.logOrphans([]string{asset.PublicID}, err)
		return nil, err
	}
	exclusions := used.Union(s.opts.Banned)

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxCreateRetries; attempt++ {
		c, err := s.pickCode(exclusions)
		if err != nil {
			s.logOrphans([]string{asset.PublicID}, err)
			return nil, err
		}

		p, err := s.repo.Create(ctx, newRecord(asset, c))
		if err == nil {
			s.logger.Info("upload photography complete", "id", p.ID, "code", p.Code)
			return p, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			s.logOrphans([]string{asset.PublicID}, err)
			return nil, err
		}
		s.logger.Warn("code taken by concurrent upload, retrying", "code", c, "attempt", attempt+1)
		exclusions.Add(c)
		lastErr = err
	}

	s.logOrphans([]string{asset.PublicID}, lastErr)
	return nil, lastErr
}

// UploadPhotographies uploads all images concurrently. If any upload fails no
// record is created. Codes are unique within the batch and against the store.
func (s *PhotographyService) UploadPhotographies(ctx context.Context, ups []Upload) ([]*domain.Photography, error) {
	s.logger.Info("upload photographies started", "count", len(ups))
	if len(ups) == 0 {
		return []*domain.Photography{}, nil
	}

	assets := make([]*mediastore.Asset, len(ups))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range ups {
		g.Go(func() error {
			asset, err := s.upload(gctx, up)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logOrphans(publicIDsOf(assets), err)
		return nil, err
	}
	s.logger.Debug("media uploaded", "count", len(assets))

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxCreateRetries; attempt++ {
		used, err := s.usedCodes(ctx)
		if err != nil {
			s.logOrphans(publicIDsOf(assets), err)
			return nil, err
		}
		exclusions := used.Union(s.opts.Banned)

		records := make([]*domain.Photography, len(assets))
		for i, asset := range assets {
			c, err := s.pickCode(exclusions)
			if err != nil {
				s.logOrphans(publicIDsOf(assets), err)
				return nil, err
			}
			exclusions.Add(c)
			records[i] = newRecord(asset, c)
		}

		created, err := s.repo.CreateMany(ctx, records)
		if err == nil {
			s.logger.Info("upload photographies complete", "count", len(created))
			return created, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			s.logOrphans(publicIDsOf(assets), err)
			return nil, err
		}
		s.logger.Warn("batch code taken by concurrent upload, retrying", "attempt", attempt+1)
		lastErr = err
	}

	s.logOrphans(publicIDsOf(assets), lastErr)
	return nil, lastErr
}

func (s *PhotographyService) ListPhotographies(ctx context.Context, order domain.SortOrder) ([]*domain.Photography, error) {
	return s.repo.List(ctx, order)
}

func (s *PhotographyService) GetPhotography(ctx context.Context, id string) (*domain.Photography, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// GetPhotographyByCode looks the code up case-insensitively.
func (s *PhotographyService) GetPhotographyByCode(ctx context.Context, c string) (*domain.Photography, error) {
	p, err := s.repo.GetByCode(ctx, c)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// DeletePhotography removes the record and its media concurrently. Both
// deletions are always attempted; their failures are reported together.
func (s *PhotographyService) DeletePhotography(ctx context.Context, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.ErrNotFound
	}

	s.logger.Info("delete photography started", "id", id, "public_id", p.PublicID)
	return s.deleteWithMedia(ctx, []string{p.PublicID}, func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	})
}

// DeletePhotographies deletes the records among ids that exist. Unknown ids
// are ignored unless none of them exist.
func (s *PhotographyService) DeletePhotographies(ctx context.Context, ids []string) error {
	found, err := s.repo.ListByIDs(ctx, dedupe(ids))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return domain.ErrNotFound
	}

	foundIDs := make([]string, 0, len(found))
	for _, p := range found {
		foundIDs = append(foundIDs, p.ID)
	}

	s.logger.Info("delete photographies started", "requested", len(ids), "found", len(found))
	return s.deleteWithMedia(ctx, publicIDsOfRecords(found), func(ctx context.Context) error {
		_, err := s.repo.DeleteByIDs(ctx, foundIDs)
		return err
	})
}

func (s *PhotographyService) DeleteAllPhotographies(ctx context.Context) error {
	all, err := s.repo.List(ctx, domain.SortAsc)
	if err != nil {
		return err
	}

	s.logger.Info("delete all photographies started", "count", len(all))
	return s.deleteWithMedia(ctx, publicIDsOfRecords(all), func(ctx context.Context) error {
		_, err := s.repo.DeleteAll(ctx)
		return err
	})
}

// deleteWithMedia runs deleteRecords alongside one media deletion per chunk of
// at most mediastore.MaxDeleteBatch ids. Nothing waits on anything else and
// every failure is collected.
func (s *PhotographyService) deleteWithMedia(ctx context.Context, publicIDs []string, deleteRecords func(context.Context) error) error {
	var g multierror.Group
	g.Go(func() error {
		return deleteRecords(ctx)
	})
	for _, batch := range Chunk(publicIDs, mediastore.MaxDeleteBatch) {
		g.Go(func() error {
			if err := s.media.Delete(ctx, batch); err != nil {
				return fmt.Errorf("%w: %d ids from %q: %w", domain.ErrMediaDelete, len(batch), batch[0], err)
			}
			return nil
		})
	}

	merr := g.Wait()
	if merr.ErrorOrNil() == nil {
		s.logger.Info("delete complete", "media_ids", len(publicIDs))
		return nil
	}
	merr.ErrorFormat = joinErrors
	s.logger.Error("delete finished with failures", "media_ids", len(publicIDs), "error", merr)
	return merr
}

// Chunk splits ids into contiguous slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func (s *PhotographyService) upload(ctx context.Context, up Upload) (*mediastore.Asset, error) {
	asset, err := s.media.Upload(ctx, s.opts.Folder, bytes.NewReader(up.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	return asset, nil
}

func (s *PhotographyService) usedCodes(ctx context.Context) (code.Set, error) {
	codes, err := s.repo.ListCodes(ctx)
	if err != nil {
		return nil, err
	}
	return code.NewSet(codes...), nil
}

// pickCode finds a code outside exclusions, widening the code by one
// character each time MaxAttempts draws come up empty.
func (s *PhotographyService) pickCode(exclusions code.Set) (string, error) {
	for length := s.opts.CodeLength; length <= s.opts.CodeMaxLength; length++ {
		c, err := code.PickCode(exclusions, func() (string, error) {
			return s.gen.Generate(length)
		}, s.opts.MaxAttempts)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, code.ErrExhausted) {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		s.logger.Warn("no free code found, widening", "length", length, "attempts", s.opts.MaxAttempts)
	}
	return "", domain.ErrCodeSpaceExhausted
}

func (s *PhotographyService) logOrphans(publicIDs []string, cause error) {
	if len(publicIDs) == 0 {
		return
	}
	s.logger.Error("uploaded media left without a record", "public_ids", publicIDs, "error", cause)
}

func newRecord(asset *mediastore.Asset, c string) *domain.Photography {
	return &domain.Photography{
		URL:      asset.URL,
		PublicID: asset.PublicID,
		Width:    asset.Width,
		Height:   asset.Height,
		Code:     c,
	}
}

func publicIDsOf(assets []*mediastore.Asset) []string {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		if a != nil {
			ids = append(ids, a.PublicID)
		}
	}
	return ids
}

func publicIDsOfRecords(ps []*domain.Photography) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.PublicID)
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
