package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive disabled"`
}

type listRequest struct {
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
	From  string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func bindContext(method, target, body string) echo.Context {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestReadAndValidateRequestAcceptsValid(t *testing.T) {
	c := bindContext(http.MethodPost, "/", `{"status":"active"}`)

	req := &statusRequest{}
	require.Nil(t, ReadAndValidateRequest(c, req))
	require.Equal(t, "active", req.Status)
}

func TestReadAndValidateRequestRejectsOneof(t *testing.T) {
	c := bindContext(http.MethodPost, "/", `{"status":"paused"}`)

	verr := ReadAndValidateRequest(c, &statusRequest{})
	require.NotNil(t, verr)

	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	require.Equal(t, "ERR_ONEOF", errs[0].Code)
	require.Contains(t, errs[0].Message, "must be one of")
	require.Equal(t, []string{"active", "inactive", "disabled"}, errs[0].Params["options"])
}

func TestReadAndValidateRequestFillsDefaults(t *testing.T) {
	c := bindContext(http.MethodGet, "/", "")

	req := &listRequest{}
	require.Nil(t, ReadAndValidateRequest(c, req))
	require.Equal(t, 50, req.Limit)
}

func TestReadAndValidateRequestRejectsRange(t *testing.T) {
	c := bindContext(http.MethodGet, "/?limit=2000", "")

	verr := ReadAndValidateRequest(c, &listRequest{})
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Equal(t, "ERR_LTE", errs[0].Code)
	require.Equal(t, "1000", errs[0].Params["max"])
}

func TestReadAndValidateRequestRejectsBadTimestamp(t *testing.T) {
	c := bindContext(http.MethodGet, "/?from=yesterday", "")

	verr := ReadAndValidateRequest(c, &listRequest{})
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Equal(t, "ERR_DATETIME", errs[0].Code)
	require.Contains(t, errs[0].Message, "timestamp")
}
