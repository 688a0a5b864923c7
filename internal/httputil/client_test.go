package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAgentRoundTripper(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(NewUserAgentRoundTripper("racebot/test", nil))
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "racebot/test", <-got)
}

func TestNewClientWithTimeout(t *testing.T) {
	t.Parallel()

	client := NewClientWithTimeout(nil, time.Second)
	assert.Equal(t, time.Second, client.Timeout)
	assert.NotNil(t, client.Transport)
}
