// Package handler holds request helpers shared by the route packages.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

// ValidationResponse is the 400 body for requests that failed binding rules.
type ValidationResponse struct {
	Status  string                  `json:"status"`
	Message string                  `json:"message"`
	Errors  []middleware.FieldError `json:"errors,omitempty"`
}

// BindJSON binds the body into req and writes a 400 when that fails.
func BindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, httputil.NewErrorResponse("request body too large"))
	case errors.Is(err, io.EOF):
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("request body is required"))
	default:
		if fields := middleware.ValidationErrors(err); fields != nil {
			c.JSON(http.StatusBadRequest, ValidationResponse{
				Status:  "error",
				Message: "validation failed",
				Errors:  fields,
			})
			return false
		}
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid request body"))
	}
	return false
}

// ParseID reads a uuid path parameter and writes a 400 when it is malformed.
func ParseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// ParseNumber reads a positive integer path parameter.
func ParseNumber(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(name+" must be a positive number"))
		return 0, false
	}
	return n, true
}

// QueryNumber reads an optional positive integer query parameter; absent is 0.
func QueryNumber(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(name+" must be a positive number"))
		return 0, false
	}
	return n, true
}
