// Package transport is the authenticated transport layer of the Backend.AI
// client. It turns a logical API call into a signed wire request and executes
// it in one of five dispatch modes.
//
// # Dispatch Modes
//
//   - Fetch: one request, one fully read response
//   - Upload: multipart body streamed from attached files with progress
//   - Download: multipart response streamed part by part to disk
//   - Events: Server-Sent Events exposed as a StreamHandle
//   - Duplex: a WebSocket exposed as a DuplexHandle (kernel PTY)
//
// # Request Pipeline
//
// Every dispatch runs the same strictly ordered pipeline: the API version is
// resolved by the Negotiator, the body and its Content-Type are frozen, the
// Request is signed, a lease is taken from the Pool and only then is the
// request sent. A Request renders exactly once; reusing it is an error.
//
// # Concurrency
//
// The Pool bounds in-flight dispatches with a weighted semaphore. Fetch,
// Upload and Download hold their lease for the duration of the call; a
// StreamHandle or DuplexHandle holds one until it is closed or the server
// ends the stream. All blocking points observe the caller's context.
//
// # Usage
//
//	d, err := transport.NewDispatcher(cfg)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//
//	req := transport.NewRequest(http.MethodGet, "/folders")
//	resp, err := d.Fetch(ctx, req)
//	if err != nil {
//		return err
//	}
//	var folders []map[string]any
//	err = resp.JSON(&folders)
package transport
