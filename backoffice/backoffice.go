package backoffice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yatube/accounts"
	"yatube/cache"
	"yatube/content"
	"yatube/database"
	"yatube/models"
)

// BackofficeModule is the staff area under /$/: groups, users and the page cache.
type BackofficeModule struct {
	db       *gorm.DB
	content  *content.Service
	cache    *cache.Store
	staff    map[string]bool
	loginURL string
}

func NewBackofficeModule(db *gorm.DB, svc *content.Service, pageCache *cache.Store, staff []string, loginURL string) *BackofficeModule {
	allowed := make(map[string]bool, len(staff))
	for _, username := range staff {
		allowed[username] = true
	}
	return &BackofficeModule{
		db:       db,
		content:  svc,
		cache:    pageCache,
		staff:    allowed,
		loginURL: loginURL,
	}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	backofficeGroup := router.Group("/$", accounts.RequireAuth(b.loginURL), b.requireBackofficeAuth)
	{
		backofficeGroup.GET("/", b.index)
		backofficeGroup.POST("/groups/", b.createGroup)
		backofficeGroup.POST("/groups/:groupID/delete/", b.deleteGroup)
		backofficeGroup.POST("/users/:userID/delete/", b.deleteUser)
		backofficeGroup.POST("/clear-cache/", b.clearCache)
	}
}

// requireBackofficeAuth lets through only the signed in users listed as staff.
func (b *BackofficeModule) requireBackofficeAuth(c *gin.Context) {
	user := accounts.CurrentUser(c)
	if !b.isBackofficeUser(user) {
		c.HTML(http.StatusForbidden, "backoffice_error.html", gin.H{
			"error": "You are not allowed to use the backoffice",
		})
		c.Abort()
		return
	}
	c.Next()
}

func (b *BackofficeModule) isBackofficeUser(user *models.User) bool {
	return user != nil && b.staff[user.Username]
}

type groupRow struct {
	Group     models.Group
	PostCount int64
}

type userRow struct {
	User      models.User
	PostCount int64
}

func (b *BackofficeModule) index(c *gin.Context) {
	b.renderIndex(c, http.StatusOK, gin.H{})
}

func (b *BackofficeModule) renderIndex(c *gin.Context, status int, data gin.H) {
	ctx := c.Request.Context()
	groups, err := b.content.Groups(ctx)
	if err != nil {
		b.serverError(c, err)
		return
	}
	groupRows := make([]groupRow, len(groups))
	for i, group := range groups {
		groupRows[i].Group = group
		if groupRows[i].PostCount, err = b.content.GroupPostCount(ctx, group.ID); err != nil {
			b.serverError(c, err)
			return
		}
	}

	var users []models.User
	if err := b.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		b.serverError(c, err)
		return
	}
	userRows := make([]userRow, len(users))
	for i, user := range users {
		userRows[i].User = user
		if userRows[i].PostCount, err = b.content.PostCount(ctx, user.ID); err != nil {
			b.serverError(c, err)
			return
		}
	}

	data["groups"] = groupRows
	data["users"] = userRows
	data["user"] = accounts.CurrentUser(c)
	c.HTML(status, "backoffice_index.html", data)
}

func (b *BackofficeModule) createGroup(c *gin.Context) {
	title := c.PostForm("title")
	slug := c.PostForm("slug")
	description := c.PostForm("description")

	group, err := b.content.CreateGroup(c.Request.Context(), title, slug, description)
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		b.renderIndex(c, http.StatusOK, gin.H{
			"error":       verr.Error(),
			"title":       title,
			"slug":        slug,
			"description": description,
		})
		return
	}
	if err != nil {
		b.serverError(c, err)
		return
	}

	log.WithField("group_id", group.ID).WithField("slug", group.Slug).Info("group created")
	c.Redirect(http.StatusFound, "/$/")
}

func (b *BackofficeModule) deleteGroup(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("groupID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	if err := database.DeleteGroup(b.db.WithContext(c.Request.Context()), uint(groupID)); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.WithError(err).Error("could not delete group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (b *BackofficeModule) deleteUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user := accounts.CurrentUser(c); user.ID == uint(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you can not delete yourself"})
		return
	}

	if err := database.DeleteUser(b.db.WithContext(c.Request.Context()), uint(userID)); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.WithError(err).Error("could not delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete user"})
		return
	}

	log.WithField("user_id", userID).Info("user deleted")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// clearCache drops every cached page so the next request renders fresh.
func (b *BackofficeModule) clearCache(c *gin.Context) {
	if b.cache == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	if err := b.cache.Clear(); err != nil {
		log.WithError(err).Error("could not clear page cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear cache: " + err.Error()})
		return
	}

	log.Info("page cache cleared")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (b *BackofficeModule) serverError(c *gin.Context, err error) {
	log.WithError(err).WithField("path", c.Request.URL.Path).Error("backoffice request failed")
	c.HTML(http.StatusInternalServerError, "backoffice_error.html", gin.H{
		"error": "Something went wrong",
	})
}
