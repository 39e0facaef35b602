package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"yatube/media"
	"yatube/models"
)

// PostInput is the submitted post form. A nil GroupID means no group; a nil
// Image keeps whatever image the post already has.
type PostInput struct {
	Text    string
	GroupID *uint
	Image   []byte
}

func (s *Service) CreatePost(ctx context.Context, author *models.User, in PostInput) (*models.Post, error) {
	if author == nil {
		return nil, ErrForbidden
	}
	text, err := s.validatePost(ctx, in)
	if err != nil {
		return nil, err
	}

	post := models.Post{
		Text:     text,
		PubDate:  s.now(),
		AuthorID: author.ID,
		GroupID:  in.GroupID,
	}
	if in.Image != nil {
		if post.Image, err = s.saveImage(in.Image); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		s.discardImage(ctx, post.Image)
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = *author

	log.WithFields(log.Fields{"post_id": post.ID, "author_id": author.ID}).Info("post created")
	return &post, nil
}

// EditPost applies in to the post. Only the author may edit; pub_date and
// author never change.
func (s *Service) EditPost(ctx context.Context, editor *models.User, postID uint, in PostInput) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Preload("Author").First(&post, postID).Error; err != nil {
		return nil, notFound("post", err)
	}
	if editor == nil || editor.Username != post.Author.Username {
		return nil, ErrForbidden
	}

	text, err := s.validatePost(ctx, in)
	if err != nil {
		return nil, err
	}

	post.Text = text
	post.GroupID = in.GroupID
	post.Group = nil
	newImage := ""
	if in.Image != nil {
		if newImage, err = s.saveImage(in.Image); err != nil {
			return nil, err
		}
		post.Image = newImage
	}

	err = s.db.WithContext(ctx).Model(&post).
		Select("Text", "GroupID", "Image").
		Updates(&models.Post{Text: post.Text, GroupID: post.GroupID, Image: post.Image}).Error
	if err != nil {
		s.discardImage(ctx, newImage)
		return nil, fmt.Errorf("edit post: %w", err)
	}

	log.WithFields(log.Fields{"post_id": post.ID, "author_id": post.AuthorID}).Info("post edited")
	return &post, nil
}

// GetPost returns the post only when it belongs to username.
func (s *Service) GetPost(ctx context.Context, username string, postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Joins("JOIN users ON users.id = posts.author_id").
		Preload("Author").Preload("Group").
		Where("posts.id = ? AND users.username = ?", postID, username).
		First(&post).Error
	if err != nil {
		return nil, notFound("post", err)
	}
	return &post, nil
}

func (s *Service) PostCount(ctx context.Context, authorID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).Where("author_id = ?", authorID).Count(&n).Error
	return n, err
}

func (s *Service) GroupPostCount(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

func (s *Service) validatePost(ctx context.Context, in PostInput) (string, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", invalid("text", "required")
	}
	if in.GroupID != nil {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", *in.GroupID).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return "", invalid("group", "unknown group")
		}
	}
	return text, nil
}

func (s *Service) saveImage(data []byte) (string, error) {
	if s.images == nil {
		return "", invalid("image", "uploads are disabled")
	}
	name, err := s.images.SaveImage(data)
	switch {
	case errors.Is(err, media.ErrNotImage):
		return "", invalid("image", "upload a valid image")
	case errors.Is(err, media.ErrTooLarge):
		return "", invalid("image", "image is too large")
	case err != nil:
		return "", fmt.Errorf("save image: %w", err)
	}
	return name, nil
}

// discardImage removes an image saved for a write that failed. Names are
// content hashes, so the file is kept while another post still points at it.
func (s *Service) discardImage(ctx context.Context, name string) {
	if name == "" || s.images == nil {
		return
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("image = ?", name).Count(&n).Error; err != nil || n > 0 {
		return
	}
	if err := s.images.RemoveImage(name); err != nil {
		log.WithError(err).WithField("image", name).Warn("could not remove orphaned image")
	}
}
