// Package backendai is a Go client for the Backend.AI manager API.
//
// Every request the SDK sends is signed with the caller's access and secret
// keys (HMAC over the method, path, date, host, content type and API
// version) and carries the API version negotiated with the server on first
// use. A single dispatcher sends those requests in one of five modes:
//
//   - fetch: a request whose whole response is read into memory
//   - upload: a multipart stream of local files with byte progress
//   - download: a multipart response written to disk part by part
//   - events: a Server-Sent Events stream read through a StreamHandle
//   - duplex: a WebSocket, used for kernel terminals, read and written
//     through a DuplexHandle
//
// All modes share one connection pool whose concurrency ceiling is the
// configured maximum; stream and duplex handles hold a slot until closed.
//
// # Overview
//
// The SDK consists of several sub-packages:
//
//   - pkg/auth: request signing
//   - pkg/config: configuration and BACKEND_* environment loading
//   - pkg/transport: requests, the dispatcher, version negotiation and handles
//   - pkg/client: the session and resource wrappers built on the dispatcher
//   - pkg/errors: the error taxonomy shared by every package
//   - pkg/logging: structured logging
//   - pkg/observability: OpenTelemetry tracing and Prometheus metrics
//   - pkg/protocol: wire constants, event and version types
//
// # Creating a Session
//
//	sess, err := backendai.NewSession(backendai.DefaultConfig().With(
//	    backendai.WithEndpoint("https://api.backend.ai"),
//	    backendai.WithCredentials(accessKey, secretKey),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	info, err := sess.System().GetVersions(ctx)
//
// # Transfers
//
//	progress := backendai.NewProgress(transport.UnknownTotal, func(cur, total int64) {
//	    fmt.Printf("\r%d/%d bytes", cur, total)
//	})
//	_, err = sess.VFolder("mydata").Upload(ctx, files, "data", progress)
//	_, err = sess.VFolder("mydata").Download(ctx, []string{"result.csv"}, "out", progress)
//
// # Streams
//
//	task, _ := sess.ParseBackgroundTask(taskID)
//	last, err := task.Wait(ctx, func(p protocol.TaskProgress) {
//	    fmt.Printf("%v/%v %s\n", p.CurrentProgress, p.TotalProgress, p.Message)
//	})
//
//	pty, err := sess.Kernel(kernelID).StreamPty(ctx)
//	defer pty.Close()
//	_ = pty.Resize(ctx, 24, 80)
//	_ = pty.SendText(ctx, "ls\n")
//	frame, err := pty.Next(ctx)
//
// # Errors
//
// Failures are returned as errors.ClientError values. Use errors.IsCode,
// errors.IsCategory and errors.APIErrorDataOf to tell a rejected request
// (with the server's status and body) from a signing, transport or
// cancellation failure.
package backendai
