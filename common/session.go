package common

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionOptions are the cookie settings of the login session. SameSite=Lax
// keeps the cookie off cross-site form posts.
func SessionOptions() sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   gin.Mode() == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	}
}
