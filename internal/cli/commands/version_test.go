package commands

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

func anonymousClient() *remote.Client {
	return remote.NewClient(config.NewCredentialStore(config.RemoteConfig{}),
		remote.Options{Timeout: time.Second}, logger.Discard())
}

func TestVersionInfo_DescribesNodeProtocol(t *testing.T) {
	info := versionInfo()
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, remote.UserAgent, info["user_agent"])
	assert.Equal(t, strconv.Itoa(netutil.DefaultNodePort), info["node_port"])
	assert.Equal(t, strconv.Itoa(len(remote.Metrics)), info["metrics"])

	n, err := strconv.Atoi(info["node_commands"])
	assert.NoError(t, err)
	assert.Greater(t, n, len(remote.Metrics))
}

func TestNodeInfo_OnlineNode(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse")

	info := nodeInfo(context.Background(), anonymousClient(), node.Address())
	assert.Equal(t, node.Address(), info["node"])
	assert.Equal(t, "online", info["node_status"])
	assert.Equal(t, "greenhouse", info["node_hostname"])
	assert.NotEmpty(t, info["node_rtt"])
}

func TestNodeInfo_DeadNode(t *testing.T) {
	info := nodeInfo(context.Background(), anonymousClient(), remotetest.DeadAddress(t))
	assert.Equal(t, string(v1.ResultOffline), info["node_status"])
	assert.NotContains(t, info, "node_hostname")
	assert.NotContains(t, info, "node_rtt")
}
