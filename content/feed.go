package content

import (
	"context"

	"gorm.io/gorm"

	"yatube/models"
)

func (s *Service) GlobalFeed(ctx context.Context, page int) (*Page, error) {
	return s.paginate(s.db.WithContext(ctx).Model(&models.Post{}), page)
}

func (s *Service) GroupFeed(ctx context.Context, slug string, page int) (*models.Group, *Page, error) {
	group, err := s.GroupBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.paginate(s.db.WithContext(ctx).Model(&models.Post{}).
		Where("posts.group_id = ?", group.ID), page)
	if err != nil {
		return nil, nil, err
	}
	return group, p, nil
}

func (s *Service) AuthorFeed(ctx context.Context, username string, page int) (*models.User, *Page, error) {
	author, err := s.UserByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.paginate(s.db.WithContext(ctx).Model(&models.Post{}).
		Where("posts.author_id = ?", author.ID), page)
	if err != nil {
		return nil, nil, err
	}
	return author, p, nil
}

// FollowFeed lists posts by authors userID follows. No follows is an empty page.
func (s *Service) FollowFeed(ctx context.Context, userID uint, page int) (*Page, error) {
	return s.paginate(s.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN follows ON follows.author_id = posts.author_id").
		Where("follows.user_id = ?", userID), page)
}

// paginate counts q, clamps number onto the existing pages and loads that
// window newest first. Ties on pub_date fall back to id so windows are stable.
func (s *Service) paginate(q *gorm.DB, number int) (*Page, error) {
	q = q.Session(&gorm.Session{})

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}

	last := numPages(count, s.pageSize)
	number = clampPage(number, last)

	var posts []models.Post
	err := q.Preload("Author").Preload("Group").
		Order("posts.pub_date DESC").Order("posts.id DESC").
		Limit(s.pageSize).Offset((number - 1) * s.pageSize).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return &Page{
		Posts:    posts,
		Number:   number,
		PageSize: s.pageSize,
		NumPages: last,
		Count:    count,
	}, nil
}
