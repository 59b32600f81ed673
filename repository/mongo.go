package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cppla/inkwell/models"
)

const postsCollection = "posts"

// postDocument is the stored shape; attachments are embedded.
type postDocument struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Title       string               `bson:"title"`
	Author      string               `bson:"author"`
	Content     string               `bson:"content"`
	Attachments []attachmentDocument `bson:"attachments"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

type attachmentDocument struct {
	Filename     string `bson:"filename"`
	OriginalName string `bson:"originalName"`
	MimeType     string `bson:"mimeType"`
	Size         int64  `bson:"size"`
	URL          string `bson:"url"`
}

// MongoPostRepository stores posts in a MongoDB collection.
type MongoPostRepository struct {
	coll *mongo.Collection
}

// NewMongoPostRepository uses the posts collection of db.
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{coll: db.Collection(postsCollection)}
}

// EnsureIndexes creates the listing and reconciliation indexes.
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "attachments.filename", Value: 1}}},
	})
	return err
}

func toDocument(post *models.Post) (postDocument, error) {
	oid, err := primitive.ObjectIDFromHex(post.ID)
	if err != nil {
		return postDocument{}, err
	}
	doc := postDocument{
		ID:          oid,
		Title:       post.Title,
		Author:      post.Author,
		Content:     post.Content,
		Attachments: make([]attachmentDocument, 0, len(post.Attachments)),
		CreatedAt:   post.CreatedAt,
	}
	for _, a := range post.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument{
			Filename:     a.StoredName,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			Size:         a.Size,
			URL:          a.URL,
		})
	}
	return doc, nil
}

func (d postDocument) toModel() models.Post {
	post := models.Post{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Author:      d.Author,
		Content:     d.Content,
		Attachments: make([]models.Attachment, 0, len(d.Attachments)),
		CreatedAt:   d.CreatedAt.UTC(),
	}
	for i, a := range d.Attachments {
		post.Attachments = append(post.Attachments, models.Attachment{
			PostID:       post.ID,
			Position:     i,
			StoredName:   a.Filename,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			Size:         a.Size,
			URL:          a.URL,
		})
	}
	return post
}

func (r *MongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	stamp(post)
	doc, err := toDocument(post)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return err
}

func (r *MongoPostRepository) FindAll(ctx context.Context) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	posts := []models.Post{}
	for cur.Next(ctx) {
		var doc postDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		posts = append(posts, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *MongoPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	var doc postDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	post := doc.toModel()
	return &post, nil
}

func (r *MongoPostRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoPostRepository) ReferencedNames(ctx context.Context, names []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(names))
	if len(names) == 0 {
		return found, nil
	}
	values, err := r.coll.Distinct(ctx, "attachments.filename", bson.M{"attachments.filename": bson.M{"$in": names}})
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	// Distinct yields every filename of the matched posts, not only the queried ones.
	for _, v := range values {
		if s, ok := v.(string); ok {
			if _, ok := wanted[s]; ok {
				found[s] = struct{}{}
			}
		}
	}
	return found, nil
}

func (r *MongoPostRepository) Stats(ctx context.Context) (models.PostStats, error) {
	var stats models.PostStats
	n, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return stats, err
	}
	stats.Posts = n

	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$attachments"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "bytes", Value: bson.D{{Key: "$sum", Value: "$attachments.size"}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return stats, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Count int64 `bson:"count"`
		Bytes int64 `bson:"bytes"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return stats, err
	}
	if len(rows) > 0 {
		stats.Attachments = rows[0].Count
		stats.AttachmentBytes = rows[0].Bytes
	}
	return stats, nil
}
