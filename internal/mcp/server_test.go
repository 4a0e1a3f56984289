package mcp

import (
	"testing"

	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/pkg/config"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

func TestNewServer_RequiresConfigAndApp(t *testing.T) {
	_, err := NewServer(nil, &cli.App{}, Options{}, nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewServer(&config.Config{}, nil, Options{}, nil)
	assert.ErrorContains(t, err, "CLI app is required")
}

func TestNewServer_RegistersTools(t *testing.T) {
	srv, err := NewServer(&config.Config{}, &cli.App{}, Options{Version: "1.2.3"}, observability.DiscardLogger())
	require.NoError(t, err)

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	assert.True(t, names["purchases.permissions"])
	assert.True(t, names["sandbox.outcome"])
}

func TestFieldsToArgs_Empty(t *testing.T) {
	assert.Empty(t, fieldsToArgs(nil))
}
