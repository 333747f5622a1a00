// Package client provides a Backend.AI API session and thin wrappers for the
// manager resources that exercise each dispatch mode.
//
// A Session owns the configuration, a dispatcher with its connection pool and
// version negotiator, and the optional metrics and tracing providers:
//
//   - System: version information (fetch)
//   - VFolders and VFolder: virtual folder management, file upload (multipart
//     upload) and file download (multipart download)
//   - BackgroundTask: progress events of long-running tasks (server-sent events)
//   - Kernel: interactive terminal (WebSocket) and file upload
//
// # Creating a Session
//
//	cfg := config.Default().With(
//	    config.WithEndpoint("https://api.backend.ai"),
//	    config.WithCredentials(accessKey, secretKey),
//	)
//	sess, err := client.NewSession(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	folders, err := sess.VFolders().List(ctx, false)
//
// NewSessionFromEnv reads the same settings from BACKEND_ENDPOINT,
// BACKEND_ACCESS_KEY, BACKEND_SECRET_KEY and the other BACKEND_* variables.
//
// # Transfers
//
// Upload and Download accept a *transport.Progress. Its total is set before
// the first byte moves and its counter advances per chunk:
//
//	progress := transport.NewProgress(transport.UnknownTotal, func(cur, total int64) {
//	    fmt.Printf("\r%d/%d", cur, total)
//	})
//	_, err := sess.VFolder("mydata").Upload(ctx, []string{"data/a.csv"}, "data", progress)
//
// # Streams
//
// BackgroundTask.ListenEvents and Kernel.StreamPty return handles that hold a
// connection slot until they are closed, the server ends the stream, or the
// context passed to open them is done. Always close them.
package client
