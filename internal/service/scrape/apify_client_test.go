package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// fakeApify is an in-memory Apify API. Every submitted run succeeds
// (unless finalStatus says otherwise) and yields videosPerUser rows per username.
type fakeApify struct {
	mu            sync.Mutex
	submissions   []submitInput
	polls         int
	pendingPolls  int
	finalStatus   JobStatus
	videosPerUser int
	failNext      int
	authHeaders   []string
}

func newFakeApify() *fakeApify {
	return &fakeApify{finalStatus: JobStatusSucceeded, videosPerUser: 2}
}

func (f *fakeApify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	if f.failNext > 0 {
		f.failNext--
		http.Error(w, "upstream", http.StatusBadGateway)
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/acts/") && strings.HasSuffix(r.URL.Path, "/runs"):
		var in submitInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.submissions = append(f.submissions, in)
		fmt.Fprintf(w, `{"data":{"id":"run-%d","status":"READY"}}`, len(f.submissions))

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/dataset/items"):
		var idx int
		fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/actor-runs/run-"), "%d", &idx)
		in := f.submissions[idx-1]
		var items []RawItem
		for _, u := range in.Usernames {
			for v := 0; v < f.videosPerUser; v++ {
				items = append(items, RawItem{
					Channel: &RawChannel{
						Username:  strings.ToUpper(u),
						URL:       "https://www.tiktok.com/@" + u,
						Bio:       "hi from " + u + " biz: " + u + "@mail.com",
						Followers: FlexInt{Value: 1000, Valid: true},
					},
					Title:               fmt.Sprintf("%s video %d", u, v),
					UploadedAtFormatted: time.Date(2024, 1, v+1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
					Video:               &RawVideo{Cover: fmt.Sprintf("https://cdn/%s/%d.jpg", u, v)},
				})
			}
		}
		_ = json.NewEncoder(w).Encode(items)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/actor-runs/"):
		f.polls++
		status := f.finalStatus
		if f.pendingPolls > 0 {
			f.pendingPolls--
			status = JobStatusRunning
		}
		fmt.Fprintf(w, `{"data":{"id":"x","status":%q}}`, status)

	default:
		http.NotFound(w, r)
	}
}

func newTestApifyClient(t *testing.T, handler http.Handler) *ApifyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewApifyClient(srv.Client(), ApifyConfig{Token: "tok", BaseURL: srv.URL, ActorID: "actor"}, zap.NewNop())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestApifySubmitSendsBatchInput(t *testing.T) {
	fake := newFakeApify()
	c := newTestApifyClient(t, fake)

	id, err := c.Submit(context.Background(), []string{"a", "b"}, 20)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	require.Len(t, fake.submissions, 1)
	in := fake.submissions[0]
	assert.Equal(t, []string{"a", "b"}, in.Usernames)
	assert.Equal(t, 20, in.ResultsPerPage)
	assert.Equal(t, 2*20+300, in.MaxItems)
	assert.Equal(t, "Bearer tok", fake.authHeaders[0])
}

func TestApifyPollAndFetch(t *testing.T) {
	fake := newFakeApify()
	c := newTestApifyClient(t, fake)
	ctx := context.Background()

	id, err := c.Submit(ctx, []string{"anna"}, 3)
	require.NoError(t, err)

	status, err := c.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, status)

	items, err := c.Fetch(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ANNA", items[0].Channel.Username)
	assert.Equal(t, int64(1000), items[0].Channel.Followers.Value)
}

func TestApifyRetriesServerErrors(t *testing.T) {
	fake := newFakeApify()
	fake.failNext = 2
	c := newTestApifyClient(t, fake)

	_, err := c.Submit(context.Background(), []string{"a"}, 1)
	require.NoError(t, err)
	assert.Len(t, fake.authHeaders, 3)
}

func TestApifyClientErrorIsProviderError(t *testing.T) {
	c := newTestApifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))

	_, err := c.Submit(context.Background(), []string{"a"}, 1)
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "401")
}

func TestApifyMissingTokenIsConfigError(t *testing.T) {
	c := NewApifyClient(nil, ApifyConfig{}, zap.NewNop())
	_, err := c.Submit(context.Background(), []string{"a"}, 1)

	var ce *apperrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "APIFY_TOKEN", ce.Key)
}

func TestFlexIntAcceptsLooseNumbers(t *testing.T) {
	var v struct {
		A FlexInt `json:"a"`
		B FlexInt `json:"b"`
		C FlexInt `json:"c"`
		D FlexInt `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": "34", "c": null, "d": 5.7}`), &v))

	assert.Equal(t, FlexInt{Value: 12, Valid: true}, v.A)
	assert.Equal(t, FlexInt{Value: 34, Valid: true}, v.B)
	assert.False(t, v.C.Valid)
	assert.Nil(t, v.C.Ptr())
	assert.Equal(t, int64(5), v.D.Value)
}
