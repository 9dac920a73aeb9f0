package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLinkPageExplorerCollectsSocialAnchors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a href="https://www.instagram.com/anna/">IG</a>
			<a href="https://youtube.com/@anna?si=abc">YT</a>
			<a href="https://www.instagram.com/anna">dup</a>
			<a href="/shop">shop</a>
			<a href="mailto:anna@mail.com">mail</a>
		</body></html>`))
	}))
	defer srv.Close()

	e := NewLinkPageExplorer(srv.Client(), zap.NewNop())
	links, err := e.Explore(context.Background(), srv.URL+"/anna")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.instagram.com/anna", "https://youtube.com/@anna"}, links)
}

func TestLinkPageExplorerReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewLinkPageExplorer(srv.Client(), zap.NewNop()).Explore(context.Background(), srv.URL)
	assert.Error(t, err)
}
