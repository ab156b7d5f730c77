// Package report builds combined HTML reports from per-node fragments and
// caches the latest document per report kind.
package report

import (
	"context"
	"fmt"
	"html"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/errs"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// OfflineResponseTime is the sort key given to nodes that failed the online
// check, so they always sort after reachable nodes.
const OfflineResponseTime = time.Duration(math.MaxInt64)

var reportCommands = map[v1.ReportKind]remote.Command{
	v1.ReportSystem:   remote.CmdSystemReport,
	v1.ReportConfig:   remote.CmdConfigReport,
	v1.ReportReadings: remote.CmdReadingsReport,
	v1.ReportLatency:  remote.CmdLatencyReport,
}

// CommandFor returns the node command that fetches one node's fragment for kind.
func CommandFor(kind v1.ReportKind) (remote.Command, error) {
	cmd, ok := reportCommands[kind]
	if !ok {
		return remote.Command{}, errs.Newf(errs.ErrReportKind, "report.command", "unknown report kind %q", kind)
	}
	return cmd, nil
}

// Valid reports whether kind names a report, including combo.
func Valid(kind v1.ReportKind) bool {
	_, ok := titles[kind]
	return ok
}

// Results holds the collected node results for each per-node report kind.
type Results map[v1.ReportKind][]v1.NodeResult

// Builder collects node fragments and renders them into documents.
type Builder struct {
	coord *remote.Coordinator
	now   func() time.Time
	log   *logger.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(coord *remote.Coordinator, log *logger.Logger) *Builder {
	return &Builder{coord: coord, now: time.Now, log: log}
}

// WithClock replaces the clock used for the "generated" stamp.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Collect contacts every address for kind and returns one result per address,
// sorted by response time then address.
//
// Per node: a timed CheckOnlineStatus (failure is Offline), GetHostName,
// TestLogin (failure is AuthFailed), then the report itself. An empty
// payload is an UnknownError.
func (b *Builder) Collect(ctx context.Context, addresses []string, kind v1.ReportKind) ([]v1.NodeResult, error) {
	cmd, err := CommandFor(kind)
	if err != nil {
		return nil, err
	}
	client := b.coord.Client()

	results := b.coord.Each(ctx, addresses, func(ctx context.Context, addr netutil.NodeAddress) v1.NodeResult {
		res := v1.NodeResult{Address: addr.String(), DisplayName: addr.Host}

		start := time.Now()
		_, err := client.Send(ctx, addr, remote.CmdCheckOnline, nil, 0)
		if err != nil {
			res.Status, res.ResponseTime, res.Err = v1.ResultOffline, OfflineResponseTime, err.Error()
			return res
		}
		res.ResponseTime = time.Since(start)
		res.DisplayName = b.coord.DisplayName(ctx, addr)

		if _, err := client.Send(ctx, addr, remote.CmdTestLogin, nil, 0); err != nil {
			res.Status, res.Err = remote.StatusOf(err), err.Error()
			return res
		}

		payload, err := client.Send(ctx, addr, cmd, nil, 0)
		switch {
		case err != nil:
			res.Status, res.Err = remote.StatusOf(err), err.Error()
		case len(strings.TrimSpace(string(payload))) == 0:
			res.Status, res.Err = v1.ResultUnknownError, "empty report payload"
		default:
			res.Status, res.Payload = v1.ResultOK, payload
		}
		return res
	})
	SortResults(results)
	return results, nil
}

// CollectAll runs Collect for the four per-node kinds concurrently.
func (b *Builder) CollectAll(ctx context.Context, addresses []string) (Results, error) {
	var mu sync.Mutex
	out := make(Results, len(v1.ReportKinds))

	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range v1.ReportKinds {
		g.Go(func() error {
			rs, err := b.Collect(ctx, addresses, kind)
			if err != nil {
				return err
			}
			mu.Lock()
			out[kind] = rs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SortResults orders results by response time, then address.
func SortResults(rs []v1.NodeResult) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Less(rs[j]) })
}

// Build collects and renders one report kind.
func (b *Builder) Build(ctx context.Context, addresses []string, kind v1.ReportKind) (string, error) {
	if kind == v1.ReportCombo {
		return b.BuildCombo(ctx, addresses)
	}
	rs, err := b.Collect(ctx, addresses, kind)
	if err != nil {
		return "", err
	}
	return b.Render(kind, rs)
}

// BuildCombo collects all four kinds concurrently and stitches them into
// one document.
func (b *Builder) BuildCombo(ctx context.Context, addresses []string) (string, error) {
	all, err := b.CollectAll(ctx, addresses)
	if err != nil {
		return "", err
	}
	return b.RenderCombo(all)
}

// Render substitutes the node fragments for kind into the shared document.
func (b *Builder) Render(kind v1.ReportKind, results []v1.NodeResult) (string, error) {
	if _, err := CommandFor(kind); err != nil {
		return "", err
	}
	sorted := append([]v1.NodeResult(nil), results...)
	SortResults(sorted)

	out := b.document(Title(kind), renderNodes(sorted, false), len(sorted), countFailed(sorted))
	return out, checkResolved(kind, out)
}

// RenderCombo renders the combination report from already collected results.
// Style and script blocks inside node fragments are dropped because the
// combined shell supplies its own.
func (b *Builder) RenderCombo(all Results) (string, error) {
	var sections strings.Builder
	nodes := map[string]bool{}
	failed := map[string]bool{}
	for _, kind := range v1.ReportKinds {
		rs := append([]v1.NodeResult(nil), all[kind]...)
		SortResults(rs)
		for _, r := range rs {
			nodes[r.Address] = true
			if !r.OK() {
				failed[r.Address] = true
			}
		}
		sections.WriteString(strings.NewReplacer(
			tokKind, string(kind),
			tokSection, Title(kind),
			tokSections, renderNodes(rs, true),
		).Replace(sectionTemplate))
	}

	out := b.document(Title(v1.ReportCombo), sections.String(), len(nodes), len(failed))
	return out, checkResolved(v1.ReportCombo, out)
}

// RenderAll renders every per-node kind plus the combination report.
func (b *Builder) RenderAll(all Results) (map[v1.ReportKind]string, error) {
	docs := make(map[v1.ReportKind]string, len(titles))
	for _, kind := range v1.ReportKinds {
		doc, err := b.Render(kind, all[kind])
		if err != nil {
			return nil, err
		}
		docs[kind] = doc
	}
	combo, err := b.RenderCombo(all)
	if err != nil {
		return nil, err
	}
	docs[v1.ReportCombo] = combo
	return docs, nil
}

func (b *Builder) document(title, body string, nodes, failed int) string {
	return strings.NewReplacer(
		tokTitle, html.EscapeString(title),
		tokStyle, sharedStyle,
		tokHeading, html.EscapeString(title),
		tokGeneratedAt, b.now().UTC().Format(time.RFC1123),
		tokNodeCount, strconv.Itoa(nodes),
		tokFailedCount, strconv.Itoa(failed),
		tokBody, body,
	).Replace(documentTemplate)
}

// renderNodes renders one section per node. With stripAssets, style and
// script blocks are removed from payloads before their braces are escaped,
// so stripping can never join two braces into a placeholder.
func renderNodes(sorted []v1.NodeResult, stripAssets bool) string {
	var sb strings.Builder
	for _, r := range sorted {
		sb.WriteString(strings.NewReplacer(
			tokStatus, string(r.Status),
			tokDisplayName, escapeBraces(html.EscapeString(r.DisplayName)),
			tokAddress, escapeBraces(html.EscapeString(r.Address)),
			tokResponseTime, formatResponseTime(r),
			tokPayload, fragment(r, stripAssets),
		).Replace(nodeTemplate))
	}
	return sb.String()
}

// fragment is the body shown for one node.
func fragment(r v1.NodeResult, stripAssets bool) string {
	switch r.Status {
	case v1.ResultOK:
		body := string(r.Payload)
		if stripAssets {
			body = StripAssets(body)
		}
		return escapeBraces(body)
	case v1.ResultOffline:
		return FragmentOffline
	case v1.ResultAuthFailed:
		return FragmentAuthFailed
	default:
		return FragmentUnknown
	}
}

func formatResponseTime(r v1.NodeResult) string {
	if r.Status == v1.ResultOffline || r.ResponseTime == OfflineResponseTime {
		return "n/a"
	}
	return fmt.Sprintf("%.1f ms", float64(r.ResponseTime)/float64(time.Millisecond))
}

func countFailed(rs []v1.NodeResult) int {
	n := 0
	for _, r := range rs {
		if !r.OK() {
			n++
		}
	}
	return n
}

func checkResolved(kind v1.ReportKind, out string) error {
	if i := strings.Index(out, "{{"); i >= 0 {
		end := min(i+32, len(out))
		return errs.Newf(errs.ErrReportGeneration, "report.render", "unresolved placeholder near %q", out[i:end]).
			WithNode(string(kind))
	}
	return nil
}

var assetBlocks = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>|<script\b[^>]*>.*?</script\s*>`)

// StripAssets removes <style> and <script> blocks.
func StripAssets(s string) string {
	return assetBlocks.ReplaceAllString(s, "")
}
