package content

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"yatube/models"
)

// Follow makes user follow targetUsername and returns the target. Following
// yourself is a no-op and following twice keeps a single edge.
func (s *Service) Follow(ctx context.Context, user *models.User, targetUsername string) (*models.User, error) {
	if user == nil {
		return nil, ErrForbidden
	}
	target, err := s.UserByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == user.ID {
		return target, nil
	}

	edge := models.Follow{UserID: user.ID, AuthorID: target.ID}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "author_id"}},
			DoNothing: true,
		}).
		Create(&edge)
	if result.Error != nil {
		return nil, fmt.Errorf("follow: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.WithFields(log.Fields{"user_id": user.ID, "author_id": target.ID}).Info("follow created")
	}
	return target, nil
}

// Unfollow removes the edge user -> targetUsername; ErrNotFound when there is none.
func (s *Service) Unfollow(ctx context.Context, user *models.User, targetUsername string) (*models.User, error) {
	if user == nil {
		return nil, ErrForbidden
	}
	target, err := s.UserByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", user.ID, target.ID).
		Delete(&models.Follow{})
	if result.Error != nil {
		return nil, fmt.Errorf("unfollow: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("follow edge: %w", ErrNotFound)
	}

	log.WithFields(log.Fields{"user_id": user.ID, "author_id": target.ID}).Info("follow deleted")
	return target, nil
}

func (s *Service) IsFollowing(ctx context.Context, userID, authorID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&n).Error
	return n > 0, err
}

// FollowCounts returns how many users follow userID and how many userID follows.
func (s *Service) FollowCounts(ctx context.Context, userID uint) (followers, following int64, err error) {
	err = s.db.WithContext(ctx).Model(&models.Follow{}).Where("author_id = ?", userID).Count(&followers).Error
	if err != nil {
		return 0, 0, err
	}
	err = s.db.WithContext(ctx).Model(&models.Follow{}).Where("user_id = ?", userID).Count(&following).Error
	return followers, following, err
}
