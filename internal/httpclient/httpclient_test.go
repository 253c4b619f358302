package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(Options{Timeout: 5 * time.Second, UserAgent: "scenarist/2.5.0"})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "scenarist/2.5.0", got)
}

func TestNew_DefaultTimeout(t *testing.T) {
	client := New(Options{})
	require.Equal(t, 300*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, 300*time.Second, transport.ResponseHeaderTimeout)
}
