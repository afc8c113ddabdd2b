package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/requisition-approval/internal/application/service"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

const (
	// UserHeader carries the caller's username
	UserHeader      = "X-User"
	RequestIDHeader = "X-Request-ID"

	callerKey    = "caller"
	requestIDKey = "request_id"
)

// requestIDMiddleware echoes the client's request ID or assigns a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// authMiddleware resolves the X-User header to an active user
func authMiddleware(users service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.Authenticate(c.Request.Context(), c.GetHeader(UserHeader))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(callerKey, user)
		c.Next()
	}
}

func callerFrom(c *gin.Context) *entity.User {
	if v, ok := c.Get(callerKey); ok {
		if user, ok := v.(*entity.User); ok {
			return user
		}
	}
	return nil
}
