package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLSourceOpenProbesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewURLSource(srv.URL)
	require.NoError(t, s.Open(context.Background()))

	url, err := s.Grab(context.Background())
	require.NoError(t, err)
	require.Equal(t, srv.URL, url)
	require.NoError(t, s.Close())
}

func TestURLSourceOpenFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	require.Error(t, NewURLSource(srv.URL).Open(context.Background()))
}

func TestURLSourceOpenFailsWhenUnreachable(t *testing.T) {
	require.Error(t, NewURLSource("http://127.0.0.1:1/snap").Open(context.Background()))
}
