package posts

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yatube/accounts"
	"yatube/cache"
	"yatube/content"
	"yatube/database"
	"yatube/media"
	"yatube/metrics"
	"yatube/models"
)

var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x02, 0x00,
	0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00,
	0x02, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x0C,
	0x0A, 0x00, 0x3B,
}

type testApp struct {
	db      *gorm.DB
	content *content.Service
	cache   *cache.Store
	media   *media.Storage
	module  *PostsModule
}

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

func setupTestApp(t *testing.T) *testApp {
	db := setupTestDB()
	storage := media.NewStorage(t.TempDir(), "/media")
	svc := content.NewService(db, storage, 10)
	pageCache := cache.NewStore(t.TempDir(), 20*time.Second)
	return &testApp{
		db:      db,
		content: svc,
		cache:   pageCache,
		media:   storage,
		module:  NewPostsModule(svc, pageCache, metrics.InitMetrics(), "/auth/login/"),
	}
}

// router signs every request in as user; nil means anonymous.
func (a *testApp) router(user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.SetFuncMap(TemplateFuncs(a.media))
	router.LoadHTMLGlob("views/*.html")
	router.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(accounts.UserKey, user)
			c.Set(accounts.UserIDKey, user.ID)
		}
		c.Next()
	})
	a.module.RegisterRoutes(router)
	router.NoRoute(NotFound)
	return router
}

func createTestUser(db *gorm.DB, username string) *models.User {
	user := &models.User{Username: username, PasswordHash: "hashedpassword"}
	db.Create(user)
	return user
}

func createTestGroup(db *gorm.DB, slug string) *models.Group {
	group := &models.Group{Title: "Vsem privet", Slug: slug, Description: "Gruppa chtoby govorit privet"}
	db.Create(group)
	return group
}

func createTestPost(db *gorm.DB, author *models.User, group *models.Group, text string, pubDate time.Time) *models.Post {
	post := &models.Post{Text: text, PubDate: pubDate, AuthorID: author.ID}
	if group != nil {
		post.GroupID = &group.ID
	}
	db.Create(post)
	return post
}

func createFifteenPosts(db *gorm.DB, author *models.User, group *models.Group) {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		createTestPost(db, author, group, fmt.Sprintf("Текст%d", i), base.Add(time.Duration(i)*time.Minute))
	}
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postMultipart(router *gin.Engine, path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if image != nil {
		part, _ := writer.CreateFormFile("image", "small.gif")
		part.Write(image)
	}
	writer.Close()

	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postCards(body string) int {
	return strings.Count(body, `<article class="post">`)
}

func TestIndex_Pagination(t *testing.T) {
	app := setupTestApp(t)
	createFifteenPosts(app.db, createTestUser(app.db, "Dike"), nil)
	router := app.router(nil)

	w := get(router, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, postCards(w.Body.String()))
	assert.Less(t, strings.Index(w.Body.String(), "Текст14"), strings.Index(w.Body.String(), "Текст5"))

	w = get(router, "/?page=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, postCards(w.Body.String()))

	w = get(router, "/?page=abc")
	assert.Equal(t, 10, postCards(w.Body.String()))
}

func TestIndex_CachedUntilCleared(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Mike")
	router := app.router(author)

	w := get(router, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	_, err := app.content.CreatePost(context.Background(), author, content.PostInput{Text: "Text for cached post"})
	require.NoError(t, err)

	w = get(router, "/")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.NotContains(t, w.Body.String(), "Text for cached post")

	require.NoError(t, app.cache.Clear())

	w = get(router, "/")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), "Text for cached post")
}

func TestIndex_CacheVariesByViewer(t *testing.T) {
	app := setupTestApp(t)
	mike := createTestUser(app.db, "Mike")

	get(app.router(nil), "/")
	w := get(app.router(mike), "/")

	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), `href="/Mike/"`)
}

func TestGroupPosts(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	createFifteenPosts(app.db, author, createTestGroup(app.db, "test-slug"))
	createTestPost(app.db, author, createTestGroup(app.db, "test-slug-2"), "other group", time.Now().UTC())
	router := app.router(nil)

	w := get(router, "/group/test-slug/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, postCards(w.Body.String()))
	assert.Contains(t, w.Body.String(), "Gruppa chtoby govorit privet")
	assert.NotContains(t, w.Body.String(), "other group")
}

func TestGroupPosts_UnknownSlug(t *testing.T) {
	app := setupTestApp(t)

	w := get(app.router(nil), "/group/missing/")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page not found")
}

func TestProfile(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	createFifteenPosts(app.db, author, nil)

	w := get(app.router(nil), "/Dike/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, postCards(w.Body.String()))
	assert.Contains(t, w.Body.String(), "Posts: 15")
	assert.NotContains(t, w.Body.String(), "/Dike/follow/")
}

func TestProfile_UnknownUser(t *testing.T) {
	app := setupTestApp(t)

	w := get(app.router(nil), "/Ja/")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/Ja/")
}

func TestProfile_FollowButtons(t *testing.T) {
	app := setupTestApp(t)
	createTestUser(app.db, "Dike")
	mike := createTestUser(app.db, "Mike")
	router := app.router(mike)

	w := get(router, "/Dike/")
	assert.Contains(t, w.Body.String(), `href="/Dike/follow/"`)

	app.content.Follow(context.Background(), mike, "Dike")
	w = get(router, "/Dike/")
	assert.Contains(t, w.Body.String(), `href="/Dike/unfollow/"`)
	assert.Contains(t, w.Body.String(), "Followers: 1")

	w = get(router, "/Mike/")
	assert.NotContains(t, w.Body.String(), "/Mike/follow/")
}

func TestPostView(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	reader := createTestUser(app.db, "Mike")
	post := createTestPost(app.db, author, nil, "Тестовый текст", time.Now().UTC())
	app.content.AddComment(context.Background(), reader, post.ID, "Dike", "first comment")

	w := get(app.router(nil), fmt.Sprintf("/Dike/%d/", post.ID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Тестовый текст")
	assert.Contains(t, w.Body.String(), "first comment")
	assert.NotContains(t, w.Body.String(), "/edit/")
}

func TestPostView_WrongAuthorInPath(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	createTestUser(app.db, "Mike")
	post := createTestPost(app.db, author, nil, "text", time.Now().UTC())
	router := app.router(nil)

	w := get(router, fmt.Sprintf("/Mike/%d/", post.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(router, "/Dike/not-a-number/")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewPost_AnonymousRedirectsToLogin(t *testing.T) {
	app := setupTestApp(t)

	w := get(app.router(nil), "/new/")

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login/", location.Path)
	assert.Equal(t, "/new/", location.Query().Get("next"))
}

func TestNewPost_Form(t *testing.T) {
	app := setupTestApp(t)
	createTestGroup(app.db, "test-slug")

	w := get(app.router(createTestUser(app.db, "Mike")), "/new/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="text"`)
	assert.Contains(t, w.Body.String(), `name="group"`)
	assert.Contains(t, w.Body.String(), `name="image"`)
	assert.Contains(t, w.Body.String(), "Vsem privet")
}

func TestNewPost_CreateWithImage(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	group := createTestGroup(app.db, "test-slug")

	w := postMultipart(app.router(author), "/new/", map[string]string{
		"text":  "Текст, который мы заслужили",
		"group": fmt.Sprint(group.ID),
	}, smallGIF)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	var post models.Post
	require.NoError(t, app.db.First(&post).Error)
	assert.Equal(t, "Текст, который мы заслужили", post.Text)
	assert.Equal(t, author.ID, post.AuthorID)
	require.NotNil(t, post.GroupID)
	assert.Equal(t, group.ID, *post.GroupID)
	assert.True(t, strings.HasPrefix(post.Image, "posts/"))
}

func TestNewPost_EmptyTextShowsForm(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")

	w := postForm(app.router(author), "/new/", url.Values{"text": {"   "}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)

	var n int64
	app.db.Model(&models.Post{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestNewPost_NotAnImage(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")

	w := postMultipart(app.router(author), "/new/", map[string]string{"text": "keep this text"}, []byte("not an image"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upload a valid image")
	assert.Contains(t, w.Body.String(), "keep this text")
}

func TestNewPost_RejectsSVG(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(document.cookie)</script></svg>`)

	w := postMultipart(app.router(author), "/new/", map[string]string{"text": "vector art"}, svg)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upload a valid image")

	var n int64
	app.db.Model(&models.Post{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestPostEdit_NonAuthorRedirectsToPost(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	intruder := createTestUser(app.db, "Mike")
	post := createTestPost(app.db, author, nil, "Старый текст.", time.Now().UTC())
	router := app.router(intruder)
	editURL := fmt.Sprintf("/Dike/%d/edit/", post.ID)

	w := get(router, editURL)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/Dike/%d/", post.ID), w.Header().Get("Location"))

	w = postForm(router, editURL, url.Values{"text": {"hacked"}})
	assert.Equal(t, http.StatusFound, w.Code)

	var stored models.Post
	app.db.First(&stored, post.ID)
	assert.Equal(t, "Старый текст.", stored.Text)
}

func TestPostEdit_AnonymousRedirectsToLogin(t *testing.T) {
	app := setupTestApp(t)
	post := createTestPost(app.db, createTestUser(app.db, "Dike"), nil, "text", time.Now().UTC())

	w := get(app.router(nil), fmt.Sprintf("/Dike/%d/edit/", post.ID))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/auth/login/?next=")
}

func TestPostEdit_ByAuthor(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	group := createTestGroup(app.db, "test-slug")
	post := createTestPost(app.db, author, group, "Старый текст.", time.Now().UTC())
	router := app.router(author)
	editURL := fmt.Sprintf("/Dike/%d/edit/", post.ID)

	w := get(router, editURL)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Старый текст.")
	assert.Contains(t, w.Body.String(), "selected")

	w = postForm(router, editURL, url.Values{"text": {"Новый текст"}, "group": {fmt.Sprint(group.ID)}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/Dike/%d/", post.ID), w.Header().Get("Location"))

	var stored models.Post
	app.db.First(&stored, post.ID)
	assert.Equal(t, "Новый текст", stored.Text)
	assert.Equal(t, author.ID, stored.AuthorID)
}

func TestPostEdit_MissingPost(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")

	w := get(app.router(author), "/Dike/999/edit/")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddComment(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	reader := createTestUser(app.db, "Mike")
	post := createTestPost(app.db, author, nil, "text", time.Now().UTC())
	commentURL := fmt.Sprintf("/Dike/%d/comment/", post.ID)

	w := postForm(app.router(nil), commentURL, url.Values{"text": {"anonymous"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/auth/login/")

	w = postForm(app.router(reader), commentURL, url.Values{"text": {"Great post"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/Dike/%d/", post.ID), w.Header().Get("Location"))

	comments, err := app.content.Comments(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Great post", comments[0].Text)
	assert.Equal(t, reader.ID, comments[0].AuthorID)
}

func TestAddComment_EmptyText(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	post := createTestPost(app.db, author, nil, "text", time.Now().UTC())

	w := postForm(app.router(author), fmt.Sprintf("/Dike/%d/comment/", post.ID), url.Values{"text": {""}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)
}

func TestAddComment_WrongOwner(t *testing.T) {
	app := setupTestApp(t)
	author := createTestUser(app.db, "Dike")
	reader := createTestUser(app.db, "Mike")
	post := createTestPost(app.db, author, nil, "text", time.Now().UTC())

	w := postForm(app.router(reader), fmt.Sprintf("/Mike/%d/comment/", post.ID), url.Values{"text": {"hi"}})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func countFollows(db *gorm.DB) int64 {
	var n int64
	db.Model(&models.Follow{}).Count(&n)
	return n
}

func TestFollowUnfollow(t *testing.T) {
	app := setupTestApp(t)
	createTestUser(app.db, "Dike")
	mike := createTestUser(app.db, "Mike")
	router := app.router(mike)

	w := get(router, "/Dike/follow/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/Dike/", w.Header().Get("Location"))
	get(router, "/Dike/follow/")
	assert.Equal(t, int64(1), countFollows(app.db))

	w = get(router, "/Dike/unfollow/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/Dike/", w.Header().Get("Location"))
	assert.Equal(t, int64(0), countFollows(app.db))

	w = get(router, "/Dike/unfollow/")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollow_SelfIsSilent(t *testing.T) {
	app := setupTestApp(t)
	mike := createTestUser(app.db, "Mike")

	w := get(app.router(mike), "/Mike/follow/")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/Mike/", w.Header().Get("Location"))
	assert.Equal(t, int64(0), countFollows(app.db))
}

func TestFollow_UnknownUser(t *testing.T) {
	app := setupTestApp(t)

	w := get(app.router(createTestUser(app.db, "Mike")), "/nobody/follow/")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowIndex(t *testing.T) {
	app := setupTestApp(t)
	dike := createTestUser(app.db, "Dike")
	stranger := createTestUser(app.db, "Stranger")
	mike := createTestUser(app.db, "Mike")
	createTestPost(app.db, dike, nil, "from dike", time.Now().UTC())
	createTestPost(app.db, stranger, nil, "from stranger", time.Now().UTC())
	router := app.router(mike)

	w := get(router, "/follow/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, postCards(w.Body.String()))

	app.content.Follow(context.Background(), mike, "Dike")
	w = get(router, "/follow/")
	assert.Contains(t, w.Body.String(), "from dike")
	assert.NotContains(t, w.Body.String(), "from stranger")

	w = get(app.router(nil), "/follow/")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRenderMarkdown(t *testing.T) {
	result := renderMarkdown("This is **bold** and <script>alert(1)</script>")

	assert.Contains(t, result, "<strong>bold</strong>")
	assert.NotContains(t, result, "<script>")
}
