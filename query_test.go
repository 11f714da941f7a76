package genesisdb

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesisdb-io/client-go/genesisdbtest"
)

func TestQuery(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	server.SetQueryRows([]json.RawMessage{
		json.RawMessage(`{"name":"Ada","orders":3}`),
		json.RawMessage(`{"name":"Grace","orders":1}`),
	})

	query := "FROM e IN events WHERE e.type == 'customer-added' PROJECT INTO { name: e.data.name }"
	rows, err := client.Q(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var first struct {
		Name   string `json:"name"`
		Orders int    `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rows[0], &first))
	assert.Equal(t, "Ada", first.Name)
	assert.Equal(t, 3, first.Orders)

	assert.Equal(t, []string{query}, server.Queries())
}

func TestQueryEmptyResult(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	rows, err := client.Q(context.Background(), "FROM e IN events TOP 0")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryScalarRows(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	// Rows are arbitrary JSON values, not necessarily objects.
	server.SetQueryRows([]json.RawMessage{
		json.RawMessage(`42`),
		json.RawMessage(`"text"`),
		json.RawMessage(`null`),
	})

	rows, err := client.Q(context.Background(), "FROM e IN events PROJECT INTO COUNT()")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, json.RawMessage(`42`), rows[0])
}

func TestQueryEvents(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	server.SetQueryRows([]json.RawMessage{json.RawMessage(`{"ok":true}`)})

	rows, err := client.QueryEvents(context.Background(), "FROM e IN events")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestQueryServerRejection(t *testing.T) {
	client, err := NewClient(Config{
		APIURL:     "http://example.test",
		APIVersion: "v1",
		AuthToken:  "token",
	}, WithHTTPClient(fixedResponse(http.StatusBadRequest, "syntax error")))
	require.NoError(t, err)

	_, err = client.Q(context.Background(), "FROM broken")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "query", apiErr.Op)
}

func TestQueryMalformedResult(t *testing.T) {
	client, err := NewClient(Config{
		APIURL:     "http://example.test",
		APIVersion: "v1",
		AuthToken:  "token",
	}, WithHTTPClient(fixedResponse(http.StatusOK, `{"not":"an array"}`)))
	require.NoError(t, err)

	_, err = client.Q(context.Background(), "FROM e IN events")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestQueryTransportError(t *testing.T) {
	server := genesisdbtest.NewMockServer()
	client := newTestClient(t, server)
	server.Close()

	_, err := client.Q(context.Background(), "FROM e IN events")
	assert.ErrorIs(t, err, ErrTransport)
}
