package content

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"yatube/models"
)

// AddComment attaches a comment to the post postID owned by ownerUsername.
func (s *Service) AddComment(ctx context.Context, author *models.User, postID uint, ownerUsername, text string) (*models.Comment, error) {
	if author == nil {
		return nil, ErrForbidden
	}
	post, err := s.GetPost(ctx, ownerUsername, postID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "required")
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: author.ID,
		Text:     text,
		Created:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	comment.Author = *author

	log.WithFields(log.Fields{"comment_id": comment.ID, "post_id": post.ID, "author_id": author.ID}).Info("comment added")
	return &comment, nil
}

// Comments lists a post's comments oldest first.
func (s *Service) Comments(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).Preload("Author").
		Where("post_id = ?", postID).
		Order("created ASC").Order("id ASC").
		Find(&comments).Error
	return comments, err
}
