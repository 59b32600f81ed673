package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/repository"
	"github.com/cppla/inkwell/storage"
	"github.com/cppla/inkwell/utils"
)

const (
	cachePrefix = "cache:posts:"
	// kept outside cachePrefix so prefix invalidation never resets it
	cacheGenKey = "cache:posts-gen"
)

// Upload is one file of a create request. Open is called once.
type Upload struct {
	OriginalName string
	MimeType     string
	Open         func() (io.ReadCloser, error)
}

// CreatePostInput carries the raw form values of a new post.
type CreatePostInput struct {
	Title   string
	Author  string
	Content string
	Files   []Upload
}

// Limits are the upload constraints advertised to clients.
type Limits struct {
	MaxAttachments int   `json:"maxAttachments"`
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

// PostService implements the post lifecycle on top of a repository and an
// attachment store.
type PostService struct {
	repo           repository.PostRepository
	store          *storage.Store
	cache          *utils.Cache
	logger         *zap.Logger
	maxAttachments int
}

// NewPostService wires the service. cache and logger may be nil.
func NewPostService(repo repository.PostRepository, store *storage.Store, cache *utils.Cache, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{
		repo:           repo,
		store:          store,
		cache:          cache,
		logger:         logger,
		maxAttachments: config.MaxAttachments,
	}
}

// Limits reports the attachment count and per-file size limits.
func (s *PostService) Limits() Limits {
	return Limits{MaxAttachments: s.maxAttachments, MaxUploadBytes: s.store.MaxBytes()}
}

// List returns every post, newest first.
func (s *PostService) List(ctx context.Context) ([]models.Post, error) {
	key, cacheable := s.cacheKey(ctx, "list")
	var cached []models.Post
	if cacheable && s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	posts, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list posts", Err: err}
	}
	out := make([]models.Post, len(posts))
	for i := range posts {
		out[i] = normalize(posts[i])
	}
	if cacheable {
		s.cache.SetJSON(ctx, key, out)
	}
	return out, nil
}

// Get returns the post with the given id.
func (s *PostService) Get(ctx context.Context, id string) (models.Post, error) {
	if !models.IsValidPostID(id) {
		return models.Post{}, ErrInvalidIdentifier
	}
	key, cacheable := s.cacheKey(ctx, "detail:"+id)
	var cached models.Post
	if cacheable && s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	post, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrPostNotFound) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, &StorageError{Op: "load post", Err: err}
	}
	out := normalize(*post)
	if cacheable {
		s.cache.SetJSON(ctx, key, out)
	}
	return out, nil
}

// Create validates the input, stores the files and persists the post. Files
// stored by a request that ultimately fails are removed again.
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (models.Post, error) {
	if len(in.Files) > s.maxAttachments {
		return models.Post{}, TooManyAttachments(s.maxAttachments)
	}

	post := models.Post{
		Title:   strings.TrimSpace(in.Title),
		Author:  strings.TrimSpace(in.Author),
		Content: strings.TrimSpace(in.Content),
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", post.Title},
		{"author", post.Author},
		{"content", post.Content},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return models.Post{}, missingFields(missing)
	}

	attachments, err := s.storeFiles(ctx, in.Files)
	if err != nil {
		return models.Post{}, err
	}
	post.Attachments = attachments

	if err := s.repo.Create(ctx, &post); err != nil {
		s.discard(ctx, attachments)
		return models.Post{}, &StorageError{Op: "create post", Err: err}
	}
	s.invalidateCache(ctx)

	s.logger.Info("post created",
		zap.String("id", post.ID),
		zap.Int("attachments", len(post.Attachments)))
	return normalize(post), nil
}

func (s *PostService) storeFiles(ctx context.Context, files []Upload) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		a, err := s.storeFile(ctx, f)
		if err != nil {
			s.discard(ctx, attachments)
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, nil
}

func (s *PostService) storeFile(ctx context.Context, f Upload) (models.Attachment, error) {
	rc, err := f.Open()
	if err != nil {
		return models.Attachment{}, MalformedUpload(err)
	}
	defer rc.Close()

	stored, err := s.store.Save(ctx, rc, f.OriginalName)
	if errors.Is(err, storage.ErrTooLarge) {
		return models.Attachment{}, &ValidationError{
			Message: fmt.Sprintf("File %q exceeds the maximum size of %d bytes.", f.OriginalName, s.store.MaxBytes()),
			Err:     ErrAttachmentTooLarge,
		}
	}
	if err != nil {
		return models.Attachment{}, &StorageError{Op: "store attachment", Err: err}
	}
	return models.Attachment{
		StoredName:   stored.Name,
		OriginalName: f.OriginalName,
		MimeType:     mimeType(f),
		Size:         stored.Size,
		URL:          storage.URL(stored.Name),
	}, nil
}

// discard removes files of a failed create. It ignores cancellation of ctx.
func (s *PostService) discard(ctx context.Context, attachments []models.Attachment) {
	if len(attachments) == 0 {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), storedNames(attachments)...); err != nil {
		s.logger.Warn("failed to remove attachments of failed create", zap.Error(err))
	}
}

// Delete removes the post and then, best-effort, its attachment files.
func (s *PostService) Delete(ctx context.Context, id string) error {
	if !models.IsValidPostID(id) {
		return ErrInvalidIdentifier
	}
	post, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrPostNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &StorageError{Op: "load post", Err: err}
	}
	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return &StorageError{Op: "delete post", Err: err}
	}
	if !removed {
		return ErrNotFound
	}
	s.invalidateCache(ctx)

	if names := storedNames(post.Attachments); len(names) > 0 {
		if err := s.store.Delete(context.WithoutCancel(ctx), names...); err != nil {
			// the orphan sweeper picks these up later
			s.logger.Warn("failed to remove attachments of deleted post", zap.String("id", id), zap.Error(err))
		}
	}
	s.logger.Info("post deleted", zap.String("id", id))
	return nil
}

// Stats returns aggregate counters.
func (s *PostService) Stats(ctx context.Context) (models.PostStats, error) {
	key, cacheable := s.cacheKey(ctx, "stats")
	var cached models.PostStats
	if cacheable && s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return models.PostStats{}, &StorageError{Op: "post stats", Err: err}
	}
	if cacheable {
		s.cache.SetJSON(ctx, key, stats)
	}
	return stats, nil
}

// cacheKey scopes name to the current cache generation. A read racing a write
// stores its result under the old generation, where nobody looks it up.
func (s *PostService) cacheKey(ctx context.Context, name string) (string, bool) {
	gen, ok := s.cache.Generation(ctx, cacheGenKey)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s%d:%s", cachePrefix, gen, name), true
}

func (s *PostService) invalidateCache(ctx context.Context) {
	s.cache.BumpGeneration(ctx, cacheGenKey)
	s.cache.InvalidateByPrefix(ctx, cachePrefix)
}

func storedNames(attachments []models.Attachment) []string {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.StoredName)
	}
	return names
}

func mimeType(f Upload) string {
	if t := strings.TrimSpace(f.MimeType); t != "" {
		return t
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.OriginalName))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// normalize fixes the wire shape: attachments is never null and createdAt is UTC.
func normalize(p models.Post) models.Post {
	if p.Attachments == nil {
		p.Attachments = []models.Attachment{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p
}
