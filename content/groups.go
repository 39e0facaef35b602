package content

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"yatube/models"
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

func (s *Service) GroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var group models.Group
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&group).Error; err != nil {
		return nil, notFound("group "+slug, err)
	}
	return &group, nil
}

func (s *Service) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.WithContext(ctx).Order("title").Find(&groups).Error
	return groups, err
}

// CreateGroup is the administrator's way of adding a group.
func (s *Service) CreateGroup(ctx context.Context, title, slug, description string) (*models.Group, error) {
	title = strings.TrimSpace(title)
	slug = strings.TrimSpace(slug)
	description = strings.TrimSpace(description)

	switch {
	case title == "":
		return nil, invalid("title", "required")
	case len(title) > 200:
		return nil, invalid("title", "at most 200 characters")
	case !slugPattern.MatchString(slug):
		return nil, invalid("slug", "letters, digits, hyphens and underscores only")
	case len(slug) > 50:
		return nil, invalid("slug", "at most 50 characters")
	case description == "":
		return nil, invalid("description", "required")
	}

	group := models.Group{Title: title, Slug: slug, Description: description}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Group
		err := tx.Where("slug = ?", slug).First(&existing).Error
		if err == nil {
			return invalid("slug", "already in use")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&group).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Service) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound("user "+username, err)
	}
	return &user, nil
}
