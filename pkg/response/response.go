// Package response writes the JSON envelope every HTTP endpoint shares:
// {"success": bool, "data": ..., "error": {"code", "message"}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorInfo  `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data wrapped in the success envelope with status 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, body{Success: true, Data: data})
}

// Created writes data wrapped in the success envelope with status 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, body{Success: true, Data: data})
}

// Error writes a failure envelope with the given status and error code.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, body{Success: false, Error: &errorInfo{Code: code, Message: message}})
}

// BadRequest is Error with status 400 and code BAD_REQUEST.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Internal is Error with status 500 and code INTERNAL_ERROR.
func Internal(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
