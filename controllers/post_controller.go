package controllers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// AttachmentField is the multipart field carrying post files.
const AttachmentField = "attachments"

// multipart overhead allowed on top of the files themselves
const formOverheadBytes = 1 << 20

// PostController exposes the post lifecycle over HTTP.
type PostController struct {
	svc    *services.PostService
	logger *zap.Logger
}

// NewPostController creates a new PostController instance.
func NewPostController(svc *services.PostService, logger *zap.Logger) *PostController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostController{svc: svc, logger: logger}
}

// ListPosts returns all posts, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	posts, err := p.svc.List(ctx.Request.Context())
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, posts)
}

// GetPost returns a single post.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, err := p.svc.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, post)
}

// CreatePost accepts multipart/form-data with title, author, content and up
// to five files under "attachments". JSON and urlencoded bodies are accepted
// for posts without files.
func (p *PostController) CreatePost(ctx *gin.Context) {
	in, cleanup, err := p.bindCreate(ctx)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}
	post, err := p.svc.Create(ctx.Request.Context(), in)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Created(ctx, post)
}

// DeletePost removes a post and its files.
func (p *PostController) DeletePost(ctx *gin.Context) {
	if err := p.svc.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		p.fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (p *PostController) bindCreate(ctx *gin.Context) (services.CreatePostInput, func(), error) {
	switch ctx.ContentType() {
	case gin.MIMEJSON:
		var req struct {
			Title   string `json:"title"`
			Author  string `json:"author"`
			Content string `json:"content"`
		}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			return services.CreatePostInput{}, nil, services.MalformedUpload(err)
		}
		return services.CreatePostInput{Title: req.Title, Author: req.Author, Content: req.Content}, nil, nil
	case gin.MIMEMultipartPOSTForm:
		return p.bindMultipart(ctx)
	default:
		return services.CreatePostInput{
			Title:   ctx.PostForm("title"),
			Author:  ctx.PostForm("author"),
			Content: ctx.PostForm("content"),
		}, nil, nil
	}
}

func (p *PostController) bindMultipart(ctx *gin.Context) (services.CreatePostInput, func(), error) {
	limits := p.svc.Limits()
	if limits.MaxUploadBytes > 0 {
		limit := int64(limits.MaxAttachments+1)*limits.MaxUploadBytes + formOverheadBytes
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.CreatePostInput{}, nil, &services.ValidationError{
				Message: "Request body too large.",
				Err:     services.ErrAttachmentTooLarge,
			}
		}
		return services.CreatePostInput{}, nil, services.MalformedUpload(err)
	}
	cleanup := func() { _ = form.RemoveAll() }

	for field := range form.File {
		if field != AttachmentField {
			return services.CreatePostInput{}, cleanup, &services.ValidationError{
				Message: "Unexpected field",
				Err:     services.ErrMalformedUpload,
			}
		}
	}

	files := form.File[AttachmentField]
	in := services.CreatePostInput{
		Title:   firstValue(form, "title"),
		Author:  firstValue(form, "author"),
		Content: firstValue(form, "content"),
		Files:   make([]services.Upload, 0, len(files)),
	}
	for _, fh := range files {
		fh := fh
		in.Files = append(in.Files, services.Upload{
			OriginalName: fh.Filename,
			MimeType:     fh.Header.Get("Content-Type"),
			Open:         func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return in, cleanup, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// fail maps service errors onto status codes and business codes.
func (p *PostController) fail(ctx *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		code := 40020
		switch {
		case errors.Is(err, services.ErrTooManyAttachments):
			code = 40021
		case errors.Is(err, services.ErrAttachmentTooLarge):
			code = 40022
		case errors.Is(err, services.ErrMalformedUpload):
			code = 40023
		}
		utils.Error(ctx, http.StatusBadRequest, code, ve.Message)
	case errors.Is(err, services.ErrInvalidIdentifier):
		utils.Error(ctx, http.StatusBadRequest, 40024, "Invalid post id")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "Post not found")
	default:
		p.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.String(utils.RequestIDKey, ctx.GetString(utils.RequestIDKey)),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50020, "Internal server error")
	}
}
