package ws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"dm-service/internal/repositories"
)

func contextWithRequest(t *testing.T, header, query string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	url := "/ws"
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c.Request = req
	return c
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		query  string
		want   string
	}{
		{"Bearer abc123", "", "abc123"},
		{"bearer abc123", "", "abc123"},
		{"Basic abc123", "", ""},
		{"Bearer", "", ""},
		{"", "token=query-token", "query-token"},
		{"Bearer header-wins", "token=query-token", "header-wins"},
		{"", "", ""},
	}
	for _, tc := range cases {
		c := contextWithRequest(t, tc.header, tc.query)
		assert.Equal(t, tc.want, bearerToken(c), fmt.Sprintf("header=%q query=%q", tc.header, tc.query))
	}
}

func TestSendFailureReason(t *testing.T) {
	validation := fmt.Errorf("%w: content exceeds 200 characters", repositories.ErrValidation)
	assert.Equal(t, validation.Error(), sendFailureReason(validation))

	storage := fmt.Errorf("%w: connection refused", repositories.ErrStorageUnavailable)
	assert.Equal(t, "failed to send message, try again", sendFailureReason(storage))
}
