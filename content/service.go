package content

import (
	"time"

	"gorm.io/gorm"
)

const DefaultPageSize = 10

// ImageStore persists uploaded image bytes and returns the stored name.
type ImageStore interface {
	SaveImage(data []byte) (string, error)
	RemoveImage(name string) error
}

// Service holds the feed queries and the write operations on posts, comments
// and follow edges.
type Service struct {
	db       *gorm.DB
	images   ImageStore
	pageSize int
	now      func() time.Time
}

func NewService(db *gorm.DB, images ImageStore, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		db:       db,
		images:   images,
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) PageSize() int {
	return s.pageSize
}
