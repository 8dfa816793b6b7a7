package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartAd/api/constants"
)

func TestRequestUserID(t *testing.T) {
	t.Run("header through middleware", func(t *testing.T) {
		var got string
		h := UserIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RequestUserID(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/?user_id=query-user", nil)
		req.Header.Set(constants.HeaderUserID, " header-user ")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "header-user", got)
	})

	t.Run("query value", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?user_id=query-user", nil)
		assert.Equal(t, "query-user", RequestUserID(req))
	})

	t.Run("json body is restored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"body-user","row_ids":[1]}`))
		req.Header.Set(constants.ContentTypeText, constants.ContentTypeJSON)
		assert.Equal(t, "body-user", RequestUserID(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"user_id":"body-user","row_ids":[1]}`, string(rest))
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":`))
		req.Header.Set(constants.ContentTypeText, constants.ContentTypeJSON)
		assert.Empty(t, RequestUserID(req))
	})

	t.Run("oversized json is not inspected but stays readable", func(t *testing.T) {
		payload := `{"padding":"` + strings.Repeat("x", maxUserIDBody) + `","user_id":"late-user"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		req.Header.Set(constants.ContentTypeText, constants.ContentTypeJSON)
		assert.Empty(t, RequestUserID(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(rest))
	})

	t.Run("unknown caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("user_id"))
		assert.Empty(t, RequestUserID(req))
	})
}

type sample struct {
	Mode string  `json:"mode" validate:"omitempty,oneof=skip update"`
	IDs  []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (sample, error) {
		var s sample
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return s, DecodeJSON(req, &s)
	}

	s, err := decode(`{"mode":"skip","ids":[1,2]}`)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, s.IDs)

	_, err = decode(`{"ids":`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrInvalidJSON)

	_, err = decode(`{"mode":"merge","ids":[0]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mode: oneof skip update")
	assert.Contains(t, err.Error(), "IDs[0]: gt 0")
}

func TestRouterMiddleware(t *testing.T) {
	var seenUser string
	router := NewRouter(func(r *mux.Router) {
		r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		r.HandleFunc("/who", func(w http.ResponseWriter, r *http.Request) {
			seenUser = GetUserIDFromCtx(r.Context())
			RespondWithPayload(w, true, "", nil)
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, constants.ErrInternal, body["error"])

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(constants.HeaderUserID, "ops-7")
	req.Header.Set(HeaderRequestID, "req-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-7", seenUser)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
}

func TestNewHTTPService_Address(t *testing.T) {
	assert.Equal(t, ":9000", NewHTTPService("x", map[string]interface{}{"port": 9000}, ":1", nil).Addr())
	assert.Equal(t, ":9001", NewHTTPService("x", map[string]interface{}{"port": "9001"}, ":1", nil).Addr())
	assert.Equal(t, "127.0.0.1:5", NewHTTPService("x", map[string]interface{}{"addr": "127.0.0.1:5"}, ":1", nil).Addr())
	assert.Equal(t, ":1", NewHTTPService("x", nil, ":1", nil).Addr())
}
