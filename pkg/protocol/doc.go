// Package protocol defines the wire shapes exchanged with a Backend.AI
// manager.
//
// # Package Organization
//
//   - headers.go: header names that participate in signing and transfer
//   - version.go: API version tags and the version query response
//   - events.go: Server-Sent Event records and background task payloads
//   - pty.go: control frames understood by a kernel pseudo-terminal stream
//
// # API Versions
//
// A version tag has the form "v<major>.<yyyymmdd>", for example
// "v6.20220615". Tags order first by major number and then by date, so
// negotiation takes the lower of the client's and the server's tags.
package protocol
