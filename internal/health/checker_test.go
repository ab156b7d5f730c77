package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
)

func newChecker(password string) *Checker {
	creds := config.NewCredentialStore(config.RemoteConfig{Username: remotetest.Username, Password: password})
	return NewChecker(remote.NewClient(creds, remote.Options{}, logger.Discard()), logger.Discard())
}

func TestDiagnose_Healthy(t *testing.T) {
	node := remotetest.NewNode(t, "attic")
	d := newChecker(remotetest.Password).Diagnose(context.Background(), node.Address())

	require.Len(t, d.Steps, 3)
	assert.Equal(t, v1.ResultOK, d.Status())
	assert.Equal(t, "attic", d.DisplayName)
}

func TestDiagnose_LoginRejected(t *testing.T) {
	node := remotetest.NewNode(t, "attic")
	d := newChecker("nope").Diagnose(context.Background(), node.Address())

	require.Len(t, d.Steps, 3)
	assert.False(t, d.Steps[2].OK)
	assert.Equal(t, v1.ResultAuthFailed, d.Status())
}

func TestDiagnose_StopsAtTCP(t *testing.T) {
	d := newChecker(remotetest.Password).Diagnose(context.Background(), remotetest.DeadAddress(t))

	require.Len(t, d.Steps, 1)
	assert.Equal(t, StepTCP, d.Steps[0].Step)
	assert.Equal(t, v1.ResultOffline, d.Status())
}

func TestWaitOnline(t *testing.T) {
	c := newChecker(remotetest.Password)
	node := remotetest.NewNode(t, "attic")
	require.NoError(t, c.WaitOnline(context.Background(), node.Address(), time.Millisecond, 1))

	err := c.WaitOnline(context.Background(), remotetest.DeadAddress(t), time.Millisecond, 2)
	assert.ErrorContains(t, err, "after 3 attempts")
}
