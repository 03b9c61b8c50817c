package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listReq struct {
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	ID    string `param:"id" validate:"omitempty,uuid"`
}

func newContext(method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    int
		errCode string
	}{
		{"default applied", "/x", 50, ""},
		{"explicit", "/x?limit=20", 20, ""},
		{"too large", "/x?limit=1000", 0, "ERR_LTE"},
		{"not a number", "/x?limit=abc", 0, "ERR_UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(http.MethodGet, tt.target, "")
			var req listReq
			errs := BindAndValidate(c, &req)
			if tt.errCode == "" {
				require.Nil(t, errs)
				assert.Equal(t, tt.want, req.Limit)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.errCode, errs[0].Code)
		})
	}
}

func TestBindAndValidateUUIDParam(t *testing.T) {
	e := echo.New()
	var errs []ValidationError
	e.GET("/x/:id", func(c echo.Context) error {
		var req listReq
		errs = BindAndValidate(c, &req)
		return nil
	})
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x/not-a-uuid", nil))

	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UUID", errs[0].Code)
	assert.Equal(t, "ID must be a valid UUID", errs[0].Message)
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/x", "")
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("signal %s not found", "abc")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	c, rec = newContext(http.MethodGet, "/x", "")
	require.NoError(t, AppErrorResponse(c, errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("store down")
	err := InternalError("list failed").WithError(base).WithParam("op", "list")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "list failed: store down", err.Error())
	assert.Equal(t, "list", err.Params["op"])
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/panic", func(c echo.Context) error { panic("boom") })
}

func TestServerRoutesAndMiddleware(t *testing.T) {
	s := NewServer(nil, []Handler{pingHandler{}}, WithCORS(true))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, "http://ops.local")
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://ops.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Body.String(), "pong")

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finsignal_http_requests_total")
}
