package genesisdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesisdb-io/client-go/genesisdbtest"
)

// seedEvents stores n events on the subject and returns their ids.
func seedEvents(server *genesisdbtest.MockServer, subject string, n int) []ID {
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		ids[i] = ID(server.AppendEvent(subject, "io.genesisdb.test.counted", map[string]any{"n": i}))
	}
	return ids
}

func TestStreamEvents(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	ids := seedEvents(server, "/customer/1", 3)
	server.AppendEvent("/order/1", "io.genesisdb.test.other", nil)

	it := client.StreamEvents(ctx, "/customer/1", nil)
	defer it.Close()

	var got []ID
	for {
		event, err := it.Next()
		if errors.Is(err, Done) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "/customer/1", event.Subject)
		got = append(got, event.ID)
	}
	assert.Equal(t, ids, got)

	// Exhausted iterators keep reporting Done.
	_, err := it.Next()
	assert.ErrorIs(t, err, Done)
}

func TestStreamEventsEmpty(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	it := client.StreamEvents(context.Background(), "/nothing/here", nil)
	defer it.Close()

	_, err := it.Next()
	assert.ErrorIs(t, err, Done)
}

func TestStreamEventsSubjectHierarchy(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	server.AppendEvent("/customer/1", "io.genesisdb.test.a", nil)
	server.AppendEvent("/customer/1/orders", "io.genesisdb.test.b", nil)
	server.AppendEvent("/customers", "io.genesisdb.test.c", nil)

	events, err := client.FetchEvents(context.Background(), "/customer/1", nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestStreamEventsLowerBound(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	ids := seedEvents(server, "/customer/2", 5)

	t.Run("exclusive", func(t *testing.T) {
		events, err := client.FetchEvents(ctx, "/customer/2", &StreamOptions{
			LowerBound: ids[2],
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, ids[3], events[0].ID)
		assert.Equal(t, ids[4], events[1].ID)
	})

	t.Run("inclusive", func(t *testing.T) {
		include := true
		events, err := client.FetchEvents(ctx, "/customer/2", &StreamOptions{
			LowerBound:             ids[2],
			IncludeLowerBoundEvent: &include,
		})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, ids[2], events[0].ID)
	})
}

func TestStreamEventsLatestByEventType(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	server.AppendEvent("/config/app", "io.genesisdb.test.updated", map[string]any{"v": 1})
	server.AppendEvent("/config/app", "io.genesisdb.test.other", nil)
	last := server.AppendEvent("/config/app", "io.genesisdb.test.updated", map[string]any{"v": 2})

	events, err := client.FetchEvents(context.Background(), "/config/app", &StreamOptions{
		LatestByEventType: "io.genesisdb.test.updated",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ID(last), events[0].ID)
}

func TestStreamEventsOptionsPassThrough(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	include := true
	_, err := client.FetchEvents(context.Background(), "/customer/3", &StreamOptions{
		LowerBound:             "00000000000000000007",
		IncludeLowerBoundEvent: &include,
		LatestByEventType:      "io.genesisdb.test.t",
	})
	require.NoError(t, err)

	reqs := server.StreamRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/customer/3", reqs[0].Subject)
	require.NotNil(t, reqs[0].Options)
	assert.Equal(t, "00000000000000000007", reqs[0].Options.LowerBound)
	require.NotNil(t, reqs[0].Options.IncludeLowerBoundEvent)
	assert.True(t, *reqs[0].Options.IncludeLowerBoundEvent)
	assert.Equal(t, "io.genesisdb.test.t", reqs[0].Options.LatestByEventType)
}

func TestStreamEventsTransportError(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	seedEvents(server, "/customer/4", 5)
	server.AbortStreamAfter(2)

	it := client.StreamEvents(context.Background(), "/customer/4", nil)
	defer it.Close()

	delivered := 0
	var err error
	for {
		_, err = it.Next()
		if err != nil {
			break
		}
		delivered++
	}
	assert.Equal(t, 2, delivered)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, Done)

	// Terminal errors repeat.
	_, again := it.Next()
	assert.ErrorIs(t, again, ErrTransport)
}

func TestStreamEventsMalformedRecord(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	seedEvents(server, "/customer/5", 2)
	server.SetMalformedTail(true)

	it := client.StreamEvents(context.Background(), "/customer/5", nil)
	defer it.Close()

	delivered := 0
	var err error
	for {
		_, err = it.Next()
		if err != nil {
			break
		}
		delivered++
	}
	assert.Equal(t, 2, delivered)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestStreamEventsClose(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	seedEvents(server, "/customer/6", 3)

	it := client.StreamEvents(context.Background(), "/customer/6", nil)
	_, err := it.Next()
	require.NoError(t, err)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrIteratorClosed)
}

func TestStreamEventsCloseUnblocksObserveNext(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	// An observation with no pending events blocks in Next until the
	// connection is torn down.
	it := client.newEventIterator(context.Background(), "/idle", nil, endpointObserve)

	errCh := make(chan error, 1)
	go func() {
		_, err := it.Next()
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return server.OpenObserveCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, it.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}

func TestStreamEventsContextCancel(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := client.StreamEvents(ctx, "/customer/7", nil)
	defer it.Close()

	_, err := it.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamEventsSkipsHeartbeatsAndPrefix(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	ids := seedEvents(server, "/customer/8", 2)
	server.SetSSEPrefix(true)

	events, err := client.FetchEvents(context.Background(), "/customer/8", nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[0], events[0].ID)
	assert.Equal(t, ids[1], events[1].ID)
}

// fixedResponse builds a transport that answers every request with the
// given NDJSON body.
func fixedResponse(status int, body string) *http.Client {
	return &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Header:     http.Header{"Content-Type": []string{contentTypeNDJSON}},
				Body:       io.NopCloser(strings.NewReader(body)),
			}, nil
		}),
	}
}

func TestStreamEventsUnterminatedFinalRecord(t *testing.T) {
	body := `{"id":"01","source":"s","type":"t","subject":"/a","specversion":"1.0"}` + "\n" +
		`{"id":"02","source":"s","type":"t","subject":"/a","specversion":"1.0"}`

	client, err := NewClient(Config{
		APIURL:     "http://example.test",
		APIVersion: "v1",
		AuthToken:  "token",
	}, WithHTTPClient(fixedResponse(http.StatusOK, body)))
	require.NoError(t, err)

	events, err := client.FetchEvents(context.Background(), "/a", nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ID("02"), events[1].ID)
}

func TestStreamEventsHeartbeatRecords(t *testing.T) {
	body := `{"payload":""}` + "\n" +
		`{"id":"01","source":"s","type":"t","subject":"/a","specversion":"1.0"}` + "\n" +
		`{"payload":""}` + "\n"

	client, err := NewClient(Config{
		APIURL:     "http://example.test",
		APIVersion: "v1",
		AuthToken:  "token",
	}, WithHTTPClient(fixedResponse(http.StatusOK, body)))
	require.NoError(t, err)

	events, err := client.FetchEvents(context.Background(), "/a", nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ID("01"), events[0].ID)
}

func TestStreamEventsServerError(t *testing.T) {
	client, err := NewClient(Config{
		APIURL:     "http://example.test",
		APIVersion: "v1",
		AuthToken:  "token",
	}, WithHTTPClient(fixedResponse(http.StatusInternalServerError, "boom")))
	require.NoError(t, err)

	_, err = client.FetchEvents(context.Background(), "/a", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestDecodeEventRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		id   ID
		skip bool
		fail bool
	}{
		{"plain", `{"id":"7","specversion":"1.0"}`, "7", false, false},
		{"sse framed", `data: {"id":"8","specversion":"1.0"}`, "8", false, false},
		{"heartbeat", `{"payload":""}`, "", true, false},
		{"framed heartbeat", `data: {"payload":""}`, "", true, false},
		{"payload with data is not heartbeat", `{"payload":"","id":"9"}`, "9", false, false},
		{"truncated", `{"id":"tru`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, skip, err := decodeEventRecord([]byte(tt.line))
			if tt.fail {
				var decodeErr *DecodeError
				require.ErrorAs(t, err, &decodeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.skip, skip)
			if !tt.skip {
				assert.Equal(t, tt.id, event.ID)
			}
		})
	}
}

func TestFetchEventsDecodesPayload(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	server.AppendEvent("/customer/9", "io.genesisdb.test.named", map[string]any{"name": "Ada"})

	events, err := client.FetchEvents(context.Background(), "/customer/9", nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	var payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "Ada", payload.Name)
	assert.Equal(t, "1.0", events[0].SpecVersion)
}
