// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. The core trusts the transport
// adapter in front of it (the chat platform bridge) to authenticate users and
// forward the platform user id in X-User-ID; this middleware only validates
// and stashes it.
package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the platform user id set by the upstream adapter.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@\-]{1,128}$`)

// Identity stores a well-formed X-User-ID under the "userID" context key.
// Malformed or missing values are ignored; handlers that need a user reject
// the request themselves.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); userIDPattern.MatchString(uid) {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

// UserID returns the identity stored by Identity.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
