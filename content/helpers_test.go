package content

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yatube/database"
	"yatube/models"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		panic(err)
	}
	return db
}

type fakeImages struct {
	saved   [][]byte
	removed []string
}

func (f *fakeImages) SaveImage(data []byte) (string, error) {
	f.saved = append(f.saved, data)
	return fmt.Sprintf("posts/fake%d.gif", len(f.saved)), nil
}

func (f *fakeImages) RemoveImage(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func createTestUser(db *gorm.DB, username string) *models.User {
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hashedpassword",
	}
	db.Create(user)
	return user
}

func createTestGroup(db *gorm.DB, slug string) *models.Group {
	group := &models.Group{
		Title:       "Vsem privet " + slug,
		Slug:        slug,
		Description: "Gruppa chtoby govorit privet",
	}
	db.Create(group)
	return group
}

func createTestPost(db *gorm.DB, author *models.User, group *models.Group, text string, pubDate time.Time) *models.Post {
	post := &models.Post{
		Text:     text,
		PubDate:  pubDate,
		AuthorID: author.ID,
	}
	if group != nil {
		post.GroupID = &group.ID
	}
	db.Create(post)
	return post
}

// createFifteenPosts mirrors the usual fixture: Текст0 is the oldest, Текст14 the newest.
func createFifteenPosts(db *gorm.DB, author *models.User, group *models.Group) {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		createTestPost(db, author, group, fmt.Sprintf("Текст%d", i), base.Add(time.Duration(i)*time.Minute))
	}
}

func followEdges(db *gorm.DB) int64 {
	var n int64
	db.Model(&models.Follow{}).Count(&n)
	return n
}

func uintPtr(v uint) *uint {
	return &v
}
