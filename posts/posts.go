package posts

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"yatube/accounts"
	"yatube/cache"
	"yatube/content"
	"yatube/media"
	"yatube/metrics"
	"yatube/models"
)

// IndexCacheNamespace is the page cache namespace of the global feed.
const IndexCacheNamespace = "index"

type PostsModule struct {
	content  *content.Service
	cache    *cache.Store
	metrics  *metrics.Metrics
	loginURL string
}

// NewPostsModule wires the feed and form handlers. A nil pageCache serves the
// index uncached.
func NewPostsModule(svc *content.Service, pageCache *cache.Store, m *metrics.Metrics, loginURL string) *PostsModule {
	if m == nil {
		m = metrics.InitMetrics()
	}
	return &PostsModule{
		content:  svc,
		cache:    pageCache,
		metrics:  m,
		loginURL: loginURL,
	}
}

func (p *PostsModule) RegisterRoutes(router *gin.Engine) {
	auth := accounts.RequireAuth(p.loginURL)

	index := []gin.HandlerFunc{p.index}
	if p.cache != nil {
		index = append([]gin.HandlerFunc{cache.PageCache(p.cache, IndexCacheNamespace, indexCacheKey, p.metrics)}, index...)
	}
	router.GET("/", index...)

	router.GET("/group/:slug/", p.groupPosts)
	router.GET("/new/", auth, p.newPost)
	router.POST("/new/", auth, p.newPost)
	router.GET("/follow/", auth, p.followIndex)

	router.GET("/:username/", p.profile)
	router.GET("/:username/follow/", auth, p.profileFollow)
	router.GET("/:username/unfollow/", auth, p.profileUnfollow)
	router.GET("/:username/:post_id/", p.postView)
	router.GET("/:username/:post_id/edit/", auth, p.postEdit)
	router.POST("/:username/:post_id/edit/", auth, p.postEdit)
	router.GET("/:username/:post_id/comment/", auth, p.addComment)
	router.POST("/:username/:post_id/comment/", auth, p.addComment)
}

// indexCacheKey varies the cached index by viewer, since the page shows who is signed in.
func indexCacheKey(c *gin.Context) string {
	viewer := "anon"
	if user := currentUser(c); user != nil {
		viewer = strconv.FormatUint(uint64(user.ID), 10)
	}
	return viewer + "|" + c.Request.URL.RequestURI()
}

func currentUser(c *gin.Context) *models.User {
	return accounts.CurrentUser(c)
}

func pageNumber(c *gin.Context) int {
	return content.ParsePageNumber(c.Query("page"))
}

// fail maps domain errors onto responses.
func (p *PostsModule) fail(c *gin.Context, err error) {
	if errors.Is(err, content.ErrNotFound) {
		NotFound(c)
		return
	}
	c.Error(err)
	log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	ServerError(c)
}

func postURL(username string, postID uint) string {
	return fmt.Sprintf("/%s/%d/", username, postID)
}

func profileURL(username string) string {
	return "/" + username + "/"
}

func (p *PostsModule) index(c *gin.Context) {
	page, err := p.content.GlobalFeed(c.Request.Context(), pageNumber(c))
	if err != nil {
		p.fail(c, err)
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"page": page,
		"user": currentUser(c),
	})
}

func (p *PostsModule) groupPosts(c *gin.Context) {
	group, page, err := p.content.GroupFeed(c.Request.Context(), c.Param("slug"), pageNumber(c))
	if err != nil {
		p.fail(c, err)
		return
	}

	c.HTML(http.StatusOK, "group.html", gin.H{
		"group": group,
		"page":  page,
		"user":  currentUser(c),
	})
}

func (p *PostsModule) profile(c *gin.Context) {
	ctx := c.Request.Context()
	author, page, err := p.content.AuthorFeed(ctx, c.Param("username"), pageNumber(c))
	if err != nil {
		p.fail(c, err)
		return
	}

	user := currentUser(c)
	following := false
	if user != nil {
		if following, err = p.content.IsFollowing(ctx, user.ID, author.ID); err != nil {
			p.fail(c, err)
			return
		}
	}
	followers, follows, err := p.content.FollowCounts(ctx, author.ID)
	if err != nil {
		p.fail(c, err)
		return
	}

	c.HTML(http.StatusOK, "profile.html", gin.H{
		"author":    author,
		"page":      page,
		"following": following,
		"followers": followers,
		"follows":   follows,
		"isSelf":    user != nil && user.ID == author.ID,
		"user":      user,
	})
}

func (p *PostsModule) followIndex(c *gin.Context) {
	page, err := p.content.FollowFeed(c.Request.Context(), currentUser(c).ID, pageNumber(c))
	if err != nil {
		p.fail(c, err)
		return
	}

	c.HTML(http.StatusOK, "follow.html", gin.H{
		"page": page,
		"user": currentUser(c),
	})
}

// loadPost resolves :username/:post_id; a malformed id is a not-found.
func (p *PostsModule) loadPost(c *gin.Context) (*models.Post, bool) {
	postID, err := strconv.ParseUint(c.Param("post_id"), 10, 64)
	if err != nil {
		NotFound(c)
		return nil, false
	}
	post, err := p.content.GetPost(c.Request.Context(), c.Param("username"), uint(postID))
	if err != nil {
		p.fail(c, err)
		return nil, false
	}
	return post, true
}

func (p *PostsModule) renderPost(c *gin.Context, post *models.Post, extra gin.H) {
	comments, err := p.content.Comments(c.Request.Context(), post.ID)
	if err != nil {
		p.fail(c, err)
		return
	}
	count, err := p.content.PostCount(c.Request.Context(), post.AuthorID)
	if err != nil {
		p.fail(c, err)
		return
	}

	data := gin.H{
		"author":    post.Author,
		"post":      post,
		"comments":  comments,
		"postCount": count,
		"user":      currentUser(c),
	}
	for k, v := range extra {
		data[k] = v
	}
	c.HTML(http.StatusOK, "post.html", data)
}

func (p *PostsModule) postView(c *gin.Context) {
	post, ok := p.loadPost(c)
	if !ok {
		return
	}
	p.renderPost(c, post, nil)
}

func (p *PostsModule) newPost(c *gin.Context) {
	ctx := c.Request.Context()
	groups, err := p.content.Groups(ctx)
	if err != nil {
		p.fail(c, err)
		return
	}

	if c.Request.Method != http.MethodPost {
		c.HTML(http.StatusOK, "new.html", gin.H{
			"groups":  groups,
			"text":    "",
			"groupID": "",
			"user":    currentUser(c),
		})
		return
	}

	in, formErr := readPostForm(c)
	if formErr == nil {
		_, formErr = p.content.CreatePost(ctx, currentUser(c), in)
	}
	if formErr != nil {
		p.formError(c, formErr, gin.H{
			"groups":  groups,
			"text":    c.PostForm("text"),
			"groupID": c.PostForm("group"),
		})
		return
	}

	p.metrics.PostsCreated.Inc()
	c.Redirect(http.StatusFound, "/")
}

func (p *PostsModule) postEdit(c *gin.Context) {
	username := c.Param("username")
	user := currentUser(c)
	if user.Username != username {
		c.Redirect(http.StatusFound, "/"+username+"/"+c.Param("post_id")+"/")
		return
	}

	post, ok := p.loadPost(c)
	if !ok {
		return
	}

	groups, err := p.content.Groups(c.Request.Context())
	if err != nil {
		p.fail(c, err)
		return
	}

	if c.Request.Method != http.MethodPost {
		groupID := ""
		if post.GroupID != nil {
			groupID = strconv.FormatUint(uint64(*post.GroupID), 10)
		}
		c.HTML(http.StatusOK, "new.html", gin.H{
			"username": username,
			"post":     post,
			"groups":   groups,
			"text":     post.Text,
			"groupID":  groupID,
			"user":     user,
		})
		return
	}

	in, formErr := readPostForm(c)
	if formErr == nil {
		_, formErr = p.content.EditPost(c.Request.Context(), user, post.ID, in)
	}
	if errors.Is(formErr, content.ErrForbidden) {
		c.Redirect(http.StatusFound, postURL(username, post.ID))
		return
	}
	if formErr != nil {
		p.formError(c, formErr, gin.H{
			"username": username,
			"post":     post,
			"groups":   groups,
			"text":     c.PostForm("text"),
			"groupID":  c.PostForm("group"),
		})
		return
	}

	p.metrics.PostsEdited.Inc()
	c.Redirect(http.StatusFound, postURL(username, post.ID))
}

// formError re-renders new.html with the submitted values for validation
// failures and falls back to fail for everything else.
func (p *PostsModule) formError(c *gin.Context, err error, data gin.H) {
	var verr *content.ValidationError
	if !errors.As(err, &verr) {
		p.fail(c, err)
		return
	}
	data["errors"] = map[string]string{verr.Field: verr.Message}
	data["user"] = currentUser(c)
	c.HTML(http.StatusOK, "new.html", data)
}

func (p *PostsModule) addComment(c *gin.Context) {
	post, ok := p.loadPost(c)
	if !ok {
		return
	}

	if c.Request.Method != http.MethodPost {
		p.renderPost(c, post, gin.H{"showForm": true})
		return
	}

	text := c.PostForm("text")
	_, err := p.content.AddComment(c.Request.Context(), currentUser(c), post.ID, c.Param("username"), text)
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		p.renderPost(c, post, gin.H{
			"showForm":     true,
			"commentText":  text,
			"commentError": verr.Message,
		})
		return
	}
	if err != nil {
		p.fail(c, err)
		return
	}

	p.metrics.CommentsAdded.Inc()
	c.Redirect(http.StatusFound, postURL(post.Author.Username, post.ID))
}

func (p *PostsModule) profileFollow(c *gin.Context) {
	target, err := p.content.Follow(c.Request.Context(), currentUser(c), c.Param("username"))
	if err != nil {
		p.fail(c, err)
		return
	}

	p.metrics.FollowRequests.Inc()
	c.Redirect(http.StatusFound, profileURL(target.Username))
}

func (p *PostsModule) profileUnfollow(c *gin.Context) {
	target, err := p.content.Unfollow(c.Request.Context(), currentUser(c), c.Param("username"))
	if err != nil {
		p.fail(c, err)
		return
	}

	p.metrics.UnfollowRequest.Inc()
	c.Redirect(http.StatusFound, profileURL(target.Username))
}

// readPostForm parses the text/group/image fields of the post form.
func readPostForm(c *gin.Context) (content.PostInput, error) {
	in := content.PostInput{Text: c.PostForm("text")}

	if raw := strings.TrimSpace(c.PostForm("group")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return in, &content.ValidationError{Field: "group", Message: "unknown group"}
		}
		groupID := uint(id)
		in.GroupID = &groupID
	}

	file, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return in, nil
	}
	if err != nil {
		return in, &content.ValidationError{Field: "image", Message: "could not read the upload"}
	}
	data, err := readUpload(file)
	if err != nil {
		return in, err
	}
	in.Image = data
	return in, nil
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	if file.Size > media.MaxImageSize {
		return nil, &content.ValidationError{Field: "image", Message: "image is too large"}
	}
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, media.MaxImageSize+1))
}
