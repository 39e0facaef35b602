package site

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yatube/models"
)

type SiteModule struct {
	db      *gorm.DB
	siteURL string
}

func NewSiteModule(db *gorm.DB, siteURL string) *SiteModule {
	return &SiteModule{db: db, siteURL: strings.TrimSuffix(siteURL, "/")}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/sitemap.xml", s.sitemap)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type postEntry struct {
	ID       uint
	PubDate  time.Time
	Username string
}

func (s *SiteModule) sitemap(c *gin.Context) {
	db := s.db.WithContext(c.Request.Context())
	set := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{Loc: s.siteURL + "/", ChangeFreq: "hourly", Priority: "1.0"})

	var groups []models.Group
	if err := db.Order("slug").Find(&groups).Error; err != nil {
		s.fail(c, err)
		return
	}
	for _, group := range groups {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.siteURL + "/group/" + group.Slug + "/",
			ChangeFreq: "daily",
			Priority:   "0.8",
		})
	}

	// Only authors with at least one post are listed.
	var authors []string
	if err := db.Model(&models.User{}).
		Where("id IN (?)", db.Model(&models.Post{}).Select("author_id")).
		Order("username").
		Pluck("username", &authors).Error; err != nil {
		s.fail(c, err)
		return
	}
	for _, username := range authors {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.siteURL + "/" + username + "/",
			ChangeFreq: "daily",
			Priority:   "0.7",
		})
	}

	var posts []postEntry
	if err := db.Model(&models.Post{}).
		Select("posts.id, posts.pub_date, users.username").
		Joins("JOIN users ON users.id = posts.author_id").
		Order("posts.pub_date DESC, posts.id DESC").
		Scan(&posts).Error; err != nil {
		s.fail(c, err)
		return
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        fmt.Sprintf("%s/%s/%d/", s.siteURL, post.Username, post.ID),
			LastMod:    post.PubDate.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), out...))
}

func (s *SiteModule) fail(c *gin.Context, err error) {
	log.WithError(err).Error("could not build sitemap")
	c.String(http.StatusInternalServerError, "could not build sitemap")
}
