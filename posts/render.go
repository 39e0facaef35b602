package posts

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renderer for post and comment text. Raw HTML is not passed through.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
)

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTMLEscapeString(content)
	}
	return buf.String()
}

// MediaURLer resolves stored image names to URLs.
type MediaURLer interface {
	URL(name string) string
}

// TemplateFuncs must be installed on the router before templates are loaded.
func TemplateFuncs(media MediaURLer) template.FuncMap {
	return template.FuncMap{
		"markdown": func(s string) template.HTML {
			return template.HTML(renderMarkdown(s))
		},
		"mediaURL": func(name string) string {
			if media == nil {
				return ""
			}
			return media.URL(name)
		},
		"formatDate": func(t time.Time) string {
			return t.Format("2 Jan 2006 15:04")
		},
		"now": func() time.Time {
			return time.Now()
		},
	}
}

// NotFound renders the domain not-found page.
func NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "misc_404.html", gin.H{
		"path": c.Request.URL.Path,
		"user": currentUser(c),
	})
}

// ServerError renders the generic failure page.
func ServerError(c *gin.Context) {
	c.HTML(http.StatusInternalServerError, "misc_500.html", gin.H{})
}

// Recovery turns panics into the failure page.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithField("panic", recovered).WithField("path", c.Request.URL.Path).Error("handler panicked")
		ServerError(c)
		c.Abort()
	})
}
