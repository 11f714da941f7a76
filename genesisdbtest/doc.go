// Package genesisdbtest provides testing utilities for Genesis DB
// clients.
//
// The package includes an in-memory mock server that implements the
// Genesis DB HTTP surface (commit, stream-events, observe-events,
// query, erase, status), useful for unit testing without network
// dependencies. The server can be scripted to drop observation
// connections, abort bounded streams mid-record, or emit malformed
// records, so reconnect and decode paths can be exercised
// deterministically.
//
// Example:
//
//	func TestMyCode(t *testing.T) {
//	    server := genesisdbtest.NewMockServer()
//	    defer server.Close()
//
//	    client, err := genesisdb.NewClient(genesisdb.Config{
//	        APIURL:     server.URL(),
//	        APIVersion: "v1",
//	        AuthToken:  genesisdbtest.AuthToken,
//	    })
//	    // ...
//	}
package genesisdbtest
