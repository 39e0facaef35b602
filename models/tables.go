package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"` // json:"-" keeps the hash out of any JSON output
	DateJoined   time.Time `gorm:"autoCreateTime" json:"date_joined"`
}

type Group struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string `gorm:"size:200;not null" json:"title"`
	Slug        string `gorm:"uniqueIndex;size:50;not null" json:"slug"`
	Description string `gorm:"type:text;not null" json:"description"`
}

func (g Group) String() string {
	return g.Title
}

// Post is ordered newest first everywhere it is listed. PubDate and AuthorID are
// create-only: gorm never writes them on update.
type Post struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Text     string    `gorm:"type:text;not null" json:"text"`
	PubDate  time.Time `gorm:"<-:create;not null;index" json:"pub_date"`
	AuthorID uint      `gorm:"<-:create;not null;index" json:"author_id"`
	Author   User      `gorm:"constraint:OnDelete:CASCADE;" json:"author"`
	GroupID  *uint     `gorm:"index" json:"group_id"`
	Group    *Group    `gorm:"constraint:OnDelete:SET NULL;" json:"group,omitempty"`
	Image    string    `json:"image"` // path relative to the media root, empty when absent
}

// Preview is the short form used in listings and logs.
func (p Post) Preview() string {
	r := []rune(p.Text)
	if len(r) > 15 {
		return string(r[:15])
	}
	return p.Text
}

type Comment struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID   uint      `gorm:"not null;index" json:"post_id"`
	Post     Post      `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	AuthorID uint      `gorm:"not null;index" json:"author_id"`
	Author   User      `gorm:"constraint:OnDelete:CASCADE;" json:"author"`
	Text     string    `gorm:"type:text;not null" json:"text"`
	Created  time.Time `gorm:"<-:create;not null;index" json:"created"`
}

// Follow is the edge UserID -> AuthorID. The pair is unique and a user can not
// follow themselves.
type Follow struct {
	ID       uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   uint `gorm:"not null;index;uniqueIndex:idx_follows_user_author,priority:1" json:"user_id"`
	User     User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	AuthorID uint `gorm:"not null;index;uniqueIndex:idx_follows_user_author,priority:2;check:chk_follows_not_self,author_id <> user_id" json:"author_id"`
	Author   User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE;" json:"-"`
}
