package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
)

// GormPostRepository stores posts in a relational database through GORM.
type GormPostRepository struct {
	db *gorm.DB
}

// NewGormPostRepository wraps an opened and migrated *gorm.DB.
func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

// Migrate creates the posts and post_attachments tables.
func (r *GormPostRepository) Migrate() error {
	return r.db.AutoMigrate(&models.Post{}, &models.Attachment{})
}

func orderedAttachments(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *GormPostRepository) Create(ctx context.Context, post *models.Post) error {
	stamp(post)
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *GormPostRepository) FindAll(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Preload("Attachments", orderedAttachments).
		Order("created_at DESC").
		Order("id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *GormPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Attachments", orderedAttachments).
		Where("id = ?", id).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *GormPostRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (r *GormPostRepository) ReferencedNames(ctx context.Context, names []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(names))
	if len(names) == 0 {
		return found, nil
	}
	var used []string
	err := r.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Where("stored_name IN ?", names).
		Pluck("stored_name", &used).Error
	if err != nil {
		return nil, err
	}
	for _, n := range used {
		found[n] = struct{}{}
	}
	return found, nil
}

func (r *GormPostRepository) Stats(ctx context.Context) (models.PostStats, error) {
	var stats models.PostStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Post{}).Count(&stats.Posts).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Attachment{}).Count(&stats.Attachments).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Attachment{}).
		Select("COALESCE(SUM(size),0)").
		Scan(&stats.AttachmentBytes).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
