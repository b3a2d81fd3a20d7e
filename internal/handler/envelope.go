package handler

import "github.com/gin-gonic/gin"

// The detection and training endpoints answer with a uniform envelope:
// {"status": "success"|"error", "message"?, "result"?}. Internal details
// and stack traces are never exposed, only an error kind and message.

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}

func respondSuccess(c *gin.Context, code int, result interface{}) {
	c.JSON(code, gin.H{"status": "success", "result": result})
}
