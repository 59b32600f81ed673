package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cppla/inkwell/models"
)

// DefaultMaxAttachments matches the server limit; Submit checks it locally.
const DefaultMaxAttachments = 5

// Draft is the form state of a post being composed.
type Draft struct {
	Title   string
	Author  string
	Content string
	Files   []File
}

// Validate applies the same rules the server enforces.
func (d Draft) Validate(maxAttachments int) error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Author) == "" || strings.TrimSpace(d.Content) == "" {
		return &DraftError{Message: "title, author, and content are required"}
	}
	if len(d.Files) > maxAttachments {
		return &DraftError{Message: fmt.Sprintf("Maximum %d attachments.", maxAttachments)}
	}
	return nil
}

// PostStore holds the post list shown to a user together with its loading
// and error state. All methods are safe for concurrent use; no lock is held
// while a request is in flight.
type PostStore struct {
	client         *Client
	maxAttachments int

	mu      sync.Mutex
	posts   []models.Post
	loading bool
	err     error
	gen     uint64
	closed  bool
}

// NewPostStore creates an empty store backed by c.
func NewPostStore(c *Client) *PostStore {
	return &PostStore{client: c, maxAttachments: DefaultMaxAttachments}
}

// SetMaxAttachments adopts the limit advertised by the server.
func (s *PostStore) SetMaxAttachments(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxAttachments = n
	s.mu.Unlock()
}

// Posts returns a copy of the current list.
func (s *PostStore) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *PostStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err is the error of the last applied load.
func (s *PostStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close marks the consumer as gone. Loads finishing afterwards are dropped.
func (s *PostStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.loading = false
	s.mu.Unlock()
}

// Load fetches the list once. The result is applied only if ctx is still
// live, no newer Load started and the store is open; otherwise it returns
// ErrDiscarded (or the context error) and leaves posts and Err untouched.
func (s *PostStore) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDiscarded
	}
	s.gen++
	gen := s.gen
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	posts, err := s.client.ListPosts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return ErrDiscarded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.loading = false
		return ctxErr
	}
	s.loading = false
	if err != nil {
		s.err = err
		return err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	s.posts = posts
	return nil
}

// Submit validates the draft, creates the post and prepends it to the list.
// On success the draft is reset; on failure it is left as is and the list
// is untouched.
func (s *PostStore) Submit(ctx context.Context, draft *Draft) (models.Post, error) {
	s.mu.Lock()
	limit := s.maxAttachments
	s.mu.Unlock()
	if err := draft.Validate(limit); err != nil {
		return models.Post{}, err
	}

	created, err := s.client.CreatePost(ctx, NewPost{
		Title:   strings.TrimSpace(draft.Title),
		Author:  strings.TrimSpace(draft.Author),
		Content: strings.TrimSpace(draft.Content),
		Files:   draft.Files,
	})
	if err != nil {
		return models.Post{}, err
	}

	s.mu.Lock()
	s.posts = applyCreated(s.posts, created)
	s.mu.Unlock()
	*draft = Draft{}
	return created, nil
}

// Delete removes the post on the server and then from the list.
func (s *PostStore) Delete(ctx context.Context, id string) error {
	if err := s.client.DeletePost(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.posts = applyDeleted(s.posts, id)
	s.mu.Unlock()
	return nil
}

// applyCreated puts p first and drops any older copy with the same id.
func applyCreated(posts []models.Post, p models.Post) []models.Post {
	out := make([]models.Post, 0, len(posts)+1)
	out = append(out, p)
	for _, existing := range posts {
		if existing.ID != p.ID {
			out = append(out, existing)
		}
	}
	return out
}

func applyDeleted(posts []models.Post, id string) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
