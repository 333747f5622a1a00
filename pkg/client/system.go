package client

import (
	"context"
	"net/http"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// System reads the manager's version information
type System struct {
	session *Session
}

// System returns the system information wrapper
func (s *Session) System() *System {
	return &System{session: s}
}

// GetVersions returns the manager and API versions reported by the endpoint root
func (sys *System) GetVersions(ctx context.Context) (*protocol.VersionInfo, error) {
	resp, err := sys.session.dispatcher.Fetch(ctx, transport.NewRequest(http.MethodGet, "/"))
	if err != nil {
		return nil, err
	}
	var info protocol.VersionInfo
	if err := resp.JSON(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetManagerVersion returns the manager release
func (sys *System) GetManagerVersion(ctx context.Context) (string, error) {
	info, err := sys.GetVersions(ctx)
	if err != nil {
		return "", err
	}
	return info.Manager, nil
}

// GetAPIVersion returns the API version tag the server implements
func (sys *System) GetAPIVersion(ctx context.Context) (string, error) {
	info, err := sys.GetVersions(ctx)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}
