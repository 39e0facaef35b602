package accounts

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"yatube/models"
)

const (
	// UserKey holds the signed in *models.User in the gin context.
	UserKey = "user"
	// UserIDKey holds the signed in user's id in the gin context and the session.
	UserIDKey = "user_id"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

type AccountsModule struct {
	db *gorm.DB
}

func NewAccountsModule(db *gorm.DB) *AccountsModule {
	return &AccountsModule{db: db}
}

func (a *AccountsModule) RegisterRoutes(router *gin.Engine) {
	authGroup := router.Group("/auth")
	{
		authGroup.GET("/login/", a.loginPage)
		authGroup.POST("/login/", a.loginPost)
		authGroup.GET("/signup/", a.signupPage)
		authGroup.POST("/signup/", a.signupPost)
		authGroup.GET("/logout/", a.logout)
	}
}

// LoadUser puts the session's user into the context. Requests without a valid
// session continue anonymously.
func (a *AccountsModule) LoadUser(c *gin.Context) {
	session := sessions.Default(c)
	userID, ok := session.Get(UserIDKey).(uint)
	if !ok {
		c.Next()
		return
	}

	var user models.User
	if err := a.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Warn("could not load session user")
		}
		session.Delete(UserIDKey)
		session.Save()
		c.Next()
		return
	}

	c.Set(UserKey, &user)
	c.Set(UserIDKey, user.ID)
	c.Next()
}

// CurrentUser returns the signed in user or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// RequireAuth redirects anonymous requests to loginURL with a next parameter
// pointing back at the requested URL.
func RequireAuth(loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.Redirect(http.StatusFound, LoginRedirect(loginURL, c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

func LoginRedirect(loginURL, next string) string {
	return loginURL + "?" + url.Values{"next": {next}}.Encode()
}

// safeNext only lets local paths through.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (a *AccountsModule) loginPage(c *gin.Context) {
	if CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, safeNext(c.Query("next")))
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"next": c.Query("next"),
	})
}

func (a *AccountsModule) loginPost(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	next := c.PostForm("next")

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil || !checkPasswordHash(password, user.PasswordHash) {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"error":    "Incorrect username or password",
			"username": username,
			"next":     next,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(UserIDKey, user.ID)
	if err := session.Save(); err != nil {
		log.WithError(err).Error("could not save session")
		c.HTML(http.StatusInternalServerError, "login.html", gin.H{
			"error":    "Could not sign in, try again",
			"username": username,
			"next":     next,
		})
		return
	}

	log.WithField("user_id", user.ID).Info("user signed in")
	c.Redirect(http.StatusFound, safeNext(next))
}

func (a *AccountsModule) signupPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signup.html", gin.H{})
}

func (a *AccountsModule) signupPost(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	formData := gin.H{
		"username": username,
		"email":    email,
	}

	if !usernamePattern.MatchString(username) {
		formData["error"] = "Username may contain letters, digits and @/./+/-/_ only"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}
	if len(password) < 8 {
		formData["error"] = "Password must be at least 8 characters"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}

	user, err := a.CreateUser(username, email, password)
	if errors.Is(err, ErrUsernameTaken) {
		formData["error"] = "This username is already taken"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}
	if err != nil {
		log.WithError(err).Error("could not create user")
		formData["error"] = "Could not create the account"
		c.HTML(http.StatusInternalServerError, "signup.html", formData)
		return
	}

	session := sessions.Default(c)
	session.Set(UserIDKey, user.ID)
	session.Save()

	c.Redirect(http.StatusFound, "/")
}

func (a *AccountsModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/")
}

var ErrUsernameTaken = errors.New("username already taken")

// CreateUser stores a new user with a bcrypt password hash.
func (a *AccountsModule) CreateUser(username, email, password string) (*models.User, error) {
	var existing models.User
	err := a.db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}

	log.WithField("user_id", user.ID).Info("user created")
	return &user, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
