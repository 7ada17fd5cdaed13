package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// fakeGmail serves a fixed set of sent messages, paginated.
type fakeGmail struct {
	mu       sync.Mutex
	total    int
	queries  []string
	pageSize []string
	failGet  map[string]bool
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const listPath = "/gmail/v1/users/me/messages"
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == listPath:
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.pageSize = append(f.pageSize, r.URL.Query().Get("maxResults"))
		f.mu.Unlock()

		start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		end := start + size
		if end > f.total {
			end = f.total
		}
		res := gmail.ListMessagesResponse{}
		for i := start; i < end; i++ {
			res.Messages = append(res.Messages, &gmail.Message{Id: fmt.Sprintf("m%d", i)})
		}
		if end < f.total {
			res.NextPageToken = strconv.Itoa(end)
		}
		_ = json.NewEncoder(w).Encode(res)

	case strings.HasPrefix(r.URL.Path, listPath+"/"):
		id := strings.TrimPrefix(r.URL.Path, listPath+"/")
		if f.failGet[id] {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(gmail.Message{
			Id: id,
			Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "About " + id}},
				Body:     &gmail.MessagePartBody{Data: encode("Body of " + id)},
			},
		})

	default:
		http.NotFound(w, r)
	}
}

func newFakeClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), nil,
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	c.SetRequestInterval(0)
	return c
}

func TestListMessageIDs_Paginates(t *testing.T) {
	f := &fakeGmail{total: 250}
	c := newFakeClient(t, f)

	ids, err := c.ListMessageIDs(context.Background(), "in:sent", 230)
	require.NoError(t, err)
	assert.Len(t, ids, 230)
	assert.Equal(t, "m0", ids[0])
	assert.Equal(t, "m229", ids[229])
	assert.Equal(t, []string{"100", "100", "30"}, f.pageSize)
	assert.Equal(t, []string{"in:sent", "in:sent", "in:sent"}, f.queries)
}

func TestListMessageIDs_FewerThanRequested(t *testing.T) {
	f := &fakeGmail{total: 3}
	c := newFakeClient(t, f)

	ids, err := c.ListMessageIDs(context.Background(), "in:sent", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids)
}

func TestForeachSent_SkipsBrokenMessages(t *testing.T) {
	f := &fakeGmail{total: 3, failGet: map[string]bool{"m1": true}}
	c := newFakeClient(t, f)

	var got []SentEmail
	err := c.ForeachSent(context.Background(), SentQuery("2014/01/01", "2022/01/01"), 10, func(e SentEmail) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m0", got[0].ID)
	assert.Equal(t, "About m2", got[1].Subject)
	assert.Equal(t, "Body of m2", got[1].Content)
	assert.Equal(t, "in:sent after:2014/01/01 before:2022/01/01", f.queries[0])
}

func TestForeachSent_StopsOnCallbackError(t *testing.T) {
	f := &fakeGmail{total: 5}
	c := newFakeClient(t, f)

	stop := fmt.Errorf("enough")
	calls := 0
	err := c.ForeachSent(context.Background(), "in:sent", 5, func(SentEmail) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
