package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/felixgeelhaar/mtgate/pkg/config"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "mtgate dev")
	assert.Contains(t, out.String(), "commit: none")
}

func TestPersistentPreRun_SetsCorrelationID(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	cmd.SetContext(context.Background())

	rootCmd.PersistentPreRun(cmd, nil)

	id := observability.CorrelationIDFromContext(cmd.Context())
	assert.NotEmpty(t, id)
	info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
	require.True(t, ok)
	assert.Equal(t, info.correlationID.String(), id)
}

func TestRequireClient(t *testing.T) {
	SetApp(nil)
	_, err := RequireClient()
	assert.ErrorIs(t, err, ErrNotInitialized)

	SetApp(NewApp(&config.Config{APIURL: "http://127.0.0.1:8080"}))
	defer SetApp(nil)
	client, err := RequireClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestStatusCmd_NoApp(t *testing.T) {
	SetApp(nil)
	statusCmd.SetContext(context.Background())
	assert.ErrorIs(t, statusCmd.RunE(statusCmd, nil), ErrNotInitialized)
}
