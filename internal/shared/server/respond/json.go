package respond

import (
	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Message writes payload as JSON for API callers and text for everyone else.
func Message(c *gin.Context, status int, text string, payload interface{}) {
	if WantsJSON(c) {
		c.JSON(status, payload)
		return
	}
	c.String(status, text)
}

// WantsJSON reports whether the caller prefers application/json over text. A missing Accept
// header means text, which is what browsers and curl without flags get.
func WantsJSON(c *gin.Context) bool {
	if c.GetHeader("Accept") == "" {
		return false
	}
	return c.NegotiateFormat(gin.MIMEPlain, gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
