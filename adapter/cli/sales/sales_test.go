package sales

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/mtgate/adapter/api"
	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalesCmds(t *testing.T) {
	var requests []api.SalesRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var req api.SalesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(req)
	}))
	defer ts.Close()
	cli.SetApp(&cli.App{Client: api.NewClient(ts.URL, "", ts.Client())})
	defer cli.SetApp(nil)

	var output strings.Builder
	blockCmd.SetContext(context.Background())
	blockCmd.SetOut(&output)
	require.NoError(t, blockCmd.RunE(blockCmd, nil))
	assert.Equal(t, "Sales closed.\n", output.String())

	output.Reset()
	unblockCmd.SetContext(context.Background())
	unblockCmd.SetOut(&output)
	require.NoError(t, unblockCmd.RunE(unblockCmd, nil))
	assert.Equal(t, "Sales open.\n", output.String())

	assert.Equal(t, []api.SalesRequest{{Blocked: true}, {Blocked: false}}, requests)
}

func TestSalesCmds_NoApp(t *testing.T) {
	cli.SetApp(nil)
	blockCmd.SetContext(context.Background())
	assert.ErrorIs(t, blockCmd.RunE(blockCmd, nil), cli.ErrNotInitialized)
}
