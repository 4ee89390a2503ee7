package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"tg:12345", "tg:12345", true},
		{"  u-1  ", "u-1", true},
		{"", "", false},
		{"has space", "", false},
		{"semi;colon", "", false},
	}
	for _, tc := range cases {
		r := gin.New()
		r.Use(Identity())
		var got string
		var ok bool
		r.GET("/", func(c *gin.Context) {
			got, ok = UserID(c)
			c.Status(http.StatusNoContent)
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set(HeaderUserID, tc.header)
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("header %q: got (%q, %v) want (%q, %v)", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUserID_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyUserID, 42)
	if _, ok := UserID(c); ok {
		t.Fatalf("non-string user id must be ignored")
	}
}
