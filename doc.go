// Package genesisdb provides a Go client for Genesis DB, an append-only
// event store with atomic conditional commits, bounded event streaming,
// live observation, and a query language (GDBQL).
//
// # Basic Usage
//
// Create a client from explicit configuration or from the environment:
//
//	client, err := genesisdb.NewClient(genesisdb.Config{
//	    APIURL:     "http://localhost:8080",
//	    APIVersion: "v1",
//	    AuthToken:  "secret",
//	})
//
//	client, err := genesisdb.FromEnv()
//
// Commit events atomically, optionally gated by preconditions:
//
//	err := client.CommitEvents(ctx, []genesisdb.CommitEvent{{
//	    Source:  "io.genesisdb.app",
//	    Subject: "/customer/123",
//	    Type:    "io.genesisdb.app.customer-added",
//	    Data:    map[string]any{"name": "Ada"},
//	}}, []genesisdb.Precondition{
//	    genesisdb.IsSubjectNew("/customer/123"),
//	})
//
// Read a bounded historical window with an iterator:
//
//	it := client.StreamEvents(ctx, "/customer/123", nil)
//	defer it.Close()
//
//	for {
//	    event, err := it.Next()
//	    if errors.Is(err, genesisdb.Done) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // Process event
//	}
//
// # Live Observation
//
// ObserveEvents returns an effectively-infinite iterator that tails the
// subject and transparently reconnects on transport failures, resuming
// from the last observed event id:
//
//	obs := client.ObserveEvents(ctx, "/customer/123", nil)
//	defer obs.Close()
//
//	for {
//	    event, err := obs.Next()
//	    if err != nil {
//	        return err // terminal: cancellation or malformed wire data
//	    }
//	    // Process event (at-least-once across reconnects)
//	}
//
// # Error Handling
//
// The package provides sentinel errors for common conditions:
//
//	if errors.Is(err, genesisdb.ErrTransport) {
//	    // Connection-level failure, safe to retry
//	}
//
// Precondition rejections carry which precondition failed:
//
//	var pe *genesisdb.PreconditionError
//	if errors.As(err, &pe) {
//	    fmt.Println(pe.Failed, pe.Detail)
//	}
package genesisdb
