package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemVersions(t *testing.T) {
	m := newFakeManager(t)
	s := newTestSession(t, m.URL)
	ctx := context.Background()

	info, err := s.System().GetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v6.20220615", info.Version)
	assert.Equal(t, "24.03.0", info.Manager)

	manager, err := s.System().GetManagerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "24.03.0", manager)

	api, err := s.System().GetAPIVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v6.20220615", api)

	negotiated, err := s.APIVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v6.20220615", negotiated)
}
