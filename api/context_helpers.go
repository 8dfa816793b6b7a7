package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"SmartAd/api/constants"
)

type ctxKey string

const userIDKey ctxKey = constants.KeyUserID

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserIDFromCtx(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// UserIDMiddleware copies the X-User-ID header into the request context.
func UserIDMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := strings.TrimSpace(r.Header.Get(constants.HeaderUserID)); userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxUserIDBody bounds how much of a JSON body is read to find user_id.
const maxUserIDBody = 1 << 20

type readCloser struct {
	io.Reader
	io.Closer
}

// RequestUserID identifies the caller from the context, the user_id form or
// query value, or a user_id field in a JSON body. A JSON body is restored so
// handlers can decode it again; bodies over 1 MB are not inspected.
func RequestUserID(r *http.Request) string {
	if userID := GetUserIDFromCtx(r.Context()); userID != "" {
		return userID
	}
	if userID := strings.TrimSpace(r.FormValue(constants.KeyUserID)); userID != "" {
		return userID
	}
	if r.Body == nil || !strings.HasPrefix(r.Header.Get(constants.ContentTypeText), constants.ContentTypeJSON) {
		return ""
	}
	orig := r.Body
	body, err := io.ReadAll(io.LimitReader(orig, maxUserIDBody+1))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), orig), Closer: orig}
	if err != nil || len(body) > maxUserIDBody {
		return ""
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.UserID)
}
