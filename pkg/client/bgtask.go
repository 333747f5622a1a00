package client

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// BackgroundTask follows a long-running manager task through its event stream
type BackgroundTask struct {
	session *Session
	ID      uuid.UUID
}

// BackgroundTask returns the wrapper for task id
func (s *Session) BackgroundTask(id uuid.UUID) *BackgroundTask {
	return &BackgroundTask{session: s, ID: id}
}

// ParseBackgroundTask returns the wrapper for a task ID in string form
func (s *Session) ParseBackgroundTask(id string) (*BackgroundTask, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, clienterrors.InvalidFormat("task_id", id, "UUID")
	}
	return s.BackgroundTask(parsed), nil
}

// ListenEvents opens the task's event stream. The caller must close the handle.
func (t *BackgroundTask) ListenEvents(ctx context.Context) (*transport.StreamHandle, error) {
	req := transport.NewRequest(http.MethodGet, "/events/background-task").
		AddQuery("task_id", t.ID.String())
	return t.session.dispatcher.Events(ctx, req)
}

// Wait consumes the event stream until the task reaches a terminal event and
// returns that event. onUpdate, if set, receives every progress update.
func (t *BackgroundTask) Wait(ctx context.Context, onUpdate func(protocol.TaskProgress)) (protocol.Event, error) {
	stream, err := t.ListenEvents(ctx)
	if err != nil {
		return protocol.Event{}, err
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if err == io.EOF {
			return protocol.Event{}, clienterrors.EventSourceError("/events/background-task",
				"stream ended before task "+t.ID.String()+" finished", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return protocol.Event{}, err
		}
		if protocol.IsTerminalTaskEvent(ev.Type) {
			return ev, nil
		}
		if ev.Type == protocol.EventTaskUpdated && onUpdate != nil {
			var p protocol.TaskProgress
			if err := ev.DecodeData(&p); err != nil {
				return protocol.Event{}, clienterrors.MalformedResponse("task progress", err)
			}
			onUpdate(p)
		}
	}
}
