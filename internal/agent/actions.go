package agent

import (
	"context"
	"net/url"

	"github.com/f9-o/sensorhub/internal/core/logger"
)

// Actions performs node control commands such as RebootSystem. The agent
// acknowledges a command once Run returns nil.
type Actions interface {
	Run(ctx context.Context, command string, form url.Values) error
}

// LogActions records control commands without touching the host.
type LogActions struct {
	Log *logger.Logger
}

// Run logs the command.
func (a LogActions) Run(_ context.Context, command string, form url.Values) error {
	a.Log.Info("control command received", "command", command, "form", form.Encode())
	return nil
}
