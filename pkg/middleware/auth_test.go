package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct {
	good string
	sub  string
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.good {
		return &fakeToken{data: map[string]interface{}{"sub": f.sub, "email": "buyer@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(t *testing.T, ver Verifier, header string) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", AuthMiddleware(ver), func(c *gin.Context) {
		resp, _ := json.Marshal(gin.H{"sub": Subject(c)})
		c.Writer.Write(resp)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(t, &fakeVerifier{good: "goodtoken"}, "")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	for _, h := range []string{"BadHeader", "Basic abc", "Bearer "} {
		rw := serve(t, &fakeVerifier{good: "goodtoken"}, h)
		require.Equal(t, http.StatusUnauthorized, rw.Code, h)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(t, &fakeVerifier{good: "goodtoken", sub: "user1"}, "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
}

func TestAuthMiddleware_RejectsUnknownToken(t *testing.T) {
	rw := serve(t, &fakeVerifier{good: "goodtoken"}, "Bearer other")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), "invalid token")
}

func TestMultiVerifier(t *testing.T) {
	mv := MultiVerifier{&fakeVerifier{good: "oidc", sub: "alice"}, &fakeVerifier{good: "svc", sub: "importer"}}

	rw := serve(t, mv, "Bearer svc")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "importer")

	_, err := mv.Verify(context.Background(), "nope")
	require.Error(t, err)

	_, err = MultiVerifier{}.Verify(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoVerifier)
}
