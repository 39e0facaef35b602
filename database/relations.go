package database

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yatube/models"
)

// ErrNoRows is returned by the delete helpers when the target row does not exist.
var ErrNoRows = errors.New("record not found")

// The helpers below apply the ownership rules in one transaction so they hold
// whether or not the driver enforces the declared foreign keys:
//   user  -> posts, comments, follow edges (cascade)
//   post  -> comments (cascade)
//   group -> posts (group cleared)

func DeleteUser(db *gorm.DB, userID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoRows
			}
			return err
		}

		ownPosts := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", userID)
		if err := tx.Where("post_id IN (?) OR author_id = ?", ownPosts, userID).
			Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Where("author_id = ?", userID).Delete(&models.Post{}).Error; err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		if err := tx.Where("user_id = ? OR author_id = ?", userID, userID).
			Delete(&models.Follow{}).Error; err != nil {
			return fmt.Errorf("delete follows: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}

		log.WithField("user_id", userID).Info("user deleted")
		return nil
	})
}

func DeletePost(db *gorm.DB, postID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		result := tx.Delete(&models.Post{}, postID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNoRows
		}
		return nil
	})
}

func DeleteGroup(db *gorm.DB, groupID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("group_id = ?", groupID).
			Update("group_id", nil).Error; err != nil {
			return fmt.Errorf("clear post groups: %w", err)
		}
		result := tx.Delete(&models.Group{}, groupID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNoRows
		}

		log.WithField("group_id", groupID).Info("group deleted")
		return nil
	})
}
