// Page handlers serve the site's static HTML files from the public directory.
// Visit tracking is attached by the router, not here.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// Page file names inside the public directory.
const (
	FileHome     = "index.html"
	FileAbout    = "about.html"
	FileContact  = "contact.html"
	FileArticles = "articles.html"
	FileArticle  = "article.html"
)

// Page returns a handler that serves name from the public directory, or a
// 404 envelope when the file does not exist.
func (h *Handlers) Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := filepath.Join(h.publicDir, filepath.Base(name))
		st, err := os.Stat(path)
		if err != nil || st.IsDir() {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "page not found")
			return
		}
		c.File(path)
	}
}
