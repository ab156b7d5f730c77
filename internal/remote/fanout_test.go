package remote

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
	"github.com/f9-o/sensorhub/pkg/errs"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// scriptedSender answers from a per-address script of results.
type scriptedSender struct {
	mu      sync.Mutex
	calls   map[string]int
	answer  func(addr string, call int) ([]byte, error)
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (s *scriptedSender) Send(_ context.Context, addr netutil.NodeAddress, cmd Command, _ url.Values, _ time.Duration) ([]byte, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		old := s.maxSeen.Load()
		if n <= old || s.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	key := addr.String() + "/" + cmd.Name
	s.calls[key]++
	call := s.calls[key]
	s.mu.Unlock()
	return s.answer(addr.String(), call)
}

func (s *scriptedSender) callCount(addr string, cmd Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[addr+"/"+cmd.Name]
}

func byAddress(rs []v1.NodeResult) []v1.NodeResult {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Address < rs[j].Address })
	return rs
}

func stripTiming(rs []v1.NodeResult) []v1.NodeResult {
	out := make([]v1.NodeResult, len(rs))
	for i, r := range rs {
		r.ResponseTime = 0
		out[i] = r
	}
	return out
}

func TestFanOut_Isolation(t *testing.T) {
	a := remotetest.NewNode(t, "alpha").Set("GetSystemReport", []byte("A"))
	b := remotetest.NewNode(t, "bravo").Set("GetSystemReport", []byte("B"))
	dead := remotetest.DeadAddress(t)

	coord := NewCoordinator(newTestClient(remotetest.Password), 0, logger.Discard())
	ctx := context.Background()
	opts := FanOutOptions{DisplayName: true}

	all := byAddress(coord.FanOut(ctx, []string{a.Address(), dead, b.Address()}, CmdSystemReport, opts))
	require.Len(t, all, 3)

	healthy := byAddress(coord.FanOut(ctx, []string{a.Address(), b.Address()}, CmdSystemReport, opts))
	require.Len(t, healthy, 2)

	var withoutDead []v1.NodeResult
	for _, r := range all {
		if r.Address == dead {
			assert.Equal(t, v1.ResultOffline, r.Status)
			assert.Empty(t, r.Payload)
			assert.NotEmpty(t, r.Err)
			continue
		}
		withoutDead = append(withoutDead, r)
	}
	assert.Equal(t, stripTiming(healthy), stripTiming(withoutDead))

	names := map[string]string{}
	for _, r := range healthy {
		names[string(r.Payload)] = r.DisplayName
	}
	assert.Equal(t, map[string]string{"A": "alpha", "B": "bravo"}, names)
}

func TestFanOut_ClassifiesAuthFailure(t *testing.T) {
	node := remotetest.NewNode(t, "alpha").Set("GetConfigReport", []byte("cfg")).SetPassword("other")
	coord := NewCoordinator(newTestClient(remotetest.Password), 0, logger.Discard())

	rs := coord.FanOut(context.Background(), []string{node.Address()}, CmdConfigReport, FanOutOptions{})
	require.Len(t, rs, 1)
	assert.Equal(t, v1.ResultAuthFailed, rs[0].Status)
}

func TestFanOut_RespectsMaxConcurrency(t *testing.T) {
	s := &scriptedSender{delay: 20 * time.Millisecond, answer: func(string, int) ([]byte, error) { return []byte("ok"), nil }}
	coord := NewCoordinator(s, 2, logger.Discard())

	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"}
	rs := coord.FanOut(context.Background(), addrs, CmdCheckOnline, FanOutOptions{})
	assert.Len(t, rs, len(addrs))
	assert.LessOrEqual(t, s.maxSeen.Load(), int32(2))
	for _, r := range rs {
		assert.True(t, r.OK())
	}
}

func TestFanOut_EmptyList(t *testing.T) {
	coord := NewCoordinator(&scriptedSender{}, 0, logger.Discard())
	assert.Empty(t, coord.FanOut(context.Background(), nil, CmdCheckOnline, FanOutOptions{}))
}

func TestProbeSizes_RetryThenZero(t *testing.T) {
	unreachable := errs.Newf(errs.ErrNodeUnreachable, "test", "down")
	cases := []struct {
		addr  string
		body  string // answered from the third attempt on; earlier attempts fail
		want  float64
		ok    bool
	}{
		{"10.0.0.1:10065", " 12.5\n", 12.5, true},
		{"10.0.0.2:10065", "", 0, false}, // never answers
		{"10.0.0.3:10065", "n/a", 0, false},
		{"10.0.0.4:10065", "-3", 0, false},
		{"10.0.0.5:10065", "NaN", 0, false},
		{"10.0.0.6:10065", "+Inf", 0, false},
		{"10.0.0.7:10065", "0", 0, true},
	}
	bodies := map[string]string{}
	var addrs []string
	for _, tc := range cases {
		bodies[tc.addr] = tc.body
		addrs = append(addrs, strings.TrimSuffix(tc.addr, ":10065"))
	}
	s := &scriptedSender{answer: func(addr string, call int) ([]byte, error) {
		if call < 3 || bodies[addr] == "" {
			return nil, unreachable
		}
		return []byte(bodies[addr]), nil
	}}
	coord := NewCoordinator(s, 0, logger.Discard())

	sizes := coord.ProbeSizes(context.Background(), addrs, CmdDatabaseSize)
	require.Len(t, sizes, len(cases))
	got := map[string]NodeSize{}
	for _, ns := range sizes {
		got[ns.Address] = ns
	}
	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			assert.Equal(t, tc.want, got[tc.addr].MB)
			assert.Equal(t, tc.ok, got[tc.addr].OK)
			assert.Equal(t, SizeProbeAttempts, s.callCount(tc.addr, CmdDatabaseSize))
		})
	}
	assert.Equal(t, 12.5, TotalMB(sizes))
}

func TestProbeSizes_DuplicateAddressesCountedPerEntry(t *testing.T) {
	s := &scriptedSender{answer: func(string, int) ([]byte, error) { return []byte("4"), nil }}
	coord := NewCoordinator(s, 0, logger.Discard())

	sizes := coord.ProbeSizes(context.Background(), []string{"10.0.0.1", "10.0.0.1:10065", "10.0.0.2"}, CmdZippedLogsSize)
	require.Len(t, sizes, 3)
	assert.Equal(t, 12.0, TotalMB(sizes))
}
