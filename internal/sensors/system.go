package sensors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/f9-o/sensorhub/internal/core/logger"
)

// System returns a registry populated with the host metrics that can be read
// on this machine.
func System(ctx context.Context, log *logger.Logger) *Registry {
	r := NewRegistry(log)
	for metric, p := range map[string]Provider{
		"CPUTemperature": ProviderFunc(cpuTemperature),
		"CPUUsage":       ProviderFunc(cpuUsage),
		"MemoryUsage":    ProviderFunc(memoryUsage),
		"DiskUsage":      ProviderFunc(diskUsage),
		"LoadAverage":    ProviderFunc(loadAverage),
		"Uptime":         ProviderFunc(uptime),
	} {
		r.Probe(ctx, metric, p)
	}
	log.Info("sensors initialised", "metrics", strings.Join(r.Metrics(), ","))
	return r
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

var errNoReading = errors.New("no reading available")

func cpuTemperature(ctx context.Context) (string, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if len(temps) == 0 {
		if err == nil {
			err = errNoReading
		}
		return "", err
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "soc") {
			return formatFloat(t.Temperature), nil
		}
	}
	return formatFloat(temps[0].Temperature), nil
}

func cpuUsage(ctx context.Context) (string, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return "", err
	}
	if len(pct) == 0 {
		return "", errNoReading
	}
	return formatFloat(pct[0]), nil
}

func memoryUsage(ctx context.Context) (string, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return "", err
	}
	return formatFloat(vm.UsedPercent), nil
}

func diskUsage(ctx context.Context) (string, error) {
	u, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return "", err
	}
	return formatFloat(u.UsedPercent), nil
}

func loadAverage(ctx context.Context) (string, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s,%s,%s", formatFloat(avg.Load1), formatFloat(avg.Load5), formatFloat(avg.Load15)), nil
}

func uptime(ctx context.Context) (string, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(secs, 10), nil
}

// Info is static host information shown in the system report.
type Info struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	CPUModel        string
	CPUCores        int
	MemoryTotal     uint64
	DiskTotal       uint64
}

// HostInfo gathers Info, leaving fields empty when the host cannot report them.
func HostInfo(ctx context.Context) Info {
	var info Info
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	}
	if u, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info.DiskTotal = u.Total
	}
	return info
}
