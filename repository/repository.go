package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/inkwell/models"
)

// ErrPostNotFound is returned by FindByID when no record matches.
var ErrPostNotFound = errors.New("post not found")

// PostRepository persists posts. Callers validate identifier format before
// calling FindByID or DeleteByID.
type PostRepository interface {
	// Create assigns ID and CreatedAt and stores the post with its attachments.
	Create(ctx context.Context, post *models.Post) error
	// FindAll returns every post ordered by CreatedAt descending.
	FindAll(ctx context.Context) ([]models.Post, error)
	FindByID(ctx context.Context, id string) (*models.Post, error)
	// DeleteByID reports whether a record was removed.
	DeleteByID(ctx context.Context, id string) (bool, error)
	// ReferencedNames returns the subset of names used by some attachment.
	ReferencedNames(ctx context.Context, names []string) (map[string]struct{}, error)
	Stats(ctx context.Context) (models.PostStats, error)
}

// stamp fills the fields owned by the repository. Millisecond precision keeps
// timestamps identical across mongo, mysql and sqlite round-trips.
func stamp(post *models.Post) {
	post.ID = models.NewPostID()
	post.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	for i := range post.Attachments {
		post.Attachments[i].ID = 0
		post.Attachments[i].PostID = post.ID
		post.Attachments[i].Position = i
	}
}
