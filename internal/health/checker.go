// Package health diagnoses single nodes step by step: TCP connect, online
// check, then login.
package health

import (
	"context"
	"fmt"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// DefaultInterval is the wait between WaitOnline attempts.
const DefaultInterval = 5 * time.Second

// DefaultTimeout bounds each diagnostic step.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is used when WaitOnline is given zero retries.
const DefaultRetries = 3

// Step names one stage of a diagnosis.
type Step string

const (
	StepTCP    Step = "tcp"
	StepOnline Step = "online"
	StepLogin  Step = "login"
)

// StepResult is the outcome of one stage.
type StepResult struct {
	Step    Step
	OK      bool
	Latency time.Duration
	Err     error
}

// Diagnosis is the outcome of Diagnose. Steps stop at the first failure.
type Diagnosis struct {
	Address     netutil.NodeAddress
	DisplayName string
	Steps       []StepResult
}

// Status summarises the diagnosis the way a report would classify the node.
func (d Diagnosis) Status() v1.ResultStatus {
	for _, s := range d.Steps {
		if s.OK {
			continue
		}
		if s.Step == StepLogin {
			return remote.StatusOf(s.Err)
		}
		return v1.ResultOffline
	}
	return v1.ResultOK
}

// Checker runs node diagnostics.
type Checker struct {
	client  remote.Sender
	timeout time.Duration
	log     *logger.Logger
}

// NewChecker constructs a Checker.
func NewChecker(client remote.Sender, log *logger.Logger) *Checker {
	return &Checker{client: client, timeout: DefaultTimeout, log: log}
}

// Diagnose walks raw through each step and stops at the first failure.
func (c *Checker) Diagnose(ctx context.Context, raw string) Diagnosis {
	addr := netutil.Resolve(raw)
	d := Diagnosis{Address: addr, DisplayName: addr.Host}

	run := func(step Step, fn func() error) bool {
		start := time.Now()
		err := fn()
		res := StepResult{Step: step, OK: err == nil, Latency: time.Since(start), Err: err}
		d.Steps = append(d.Steps, res)
		if err != nil {
			c.log.Debug("diagnosis step failed", "node", addr.String(), "step", step, "err", err)
		}
		return res.OK
	}

	if !run(StepTCP, func() error { return CheckTCP(ctx, addr, c.timeout) }) {
		return d
	}
	if !run(StepOnline, func() error {
		_, err := c.client.Send(ctx, addr, remote.CmdCheckOnline, nil, c.timeout)
		return err
	}) {
		return d
	}
	if body, err := c.client.Send(ctx, addr, remote.CmdGetHostName, nil, c.timeout); err == nil && len(body) > 0 {
		d.DisplayName = string(body)
	}
	run(StepLogin, func() error {
		_, err := c.client.Send(ctx, addr, remote.CmdTestLogin, nil, c.timeout)
		return err
	})
	return d
}

// WaitOnline polls CheckOnlineStatus until it passes or retries run out.
func (c *Checker) WaitOnline(ctx context.Context, raw string, interval time.Duration, retries int) error {
	if interval == 0 {
		interval = DefaultInterval
	}
	if retries == 0 {
		retries = DefaultRetries
	}
	addr := netutil.Resolve(raw)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		_, lastErr = c.client.Send(ctx, addr, remote.CmdCheckOnline, nil, c.timeout)
		if lastErr == nil {
			c.log.Info("node online", "node", addr.String(), "attempt", attempt+1)
			return nil
		}
		c.log.Debug("online check attempt failed",
			"node", addr.String(),
			"attempt", attempt+1,
			"of", retries+1,
			"err", lastErr,
		)
	}
	return fmt.Errorf("node %s not online after %d attempts: %w", addr, retries+1, lastErr)
}
