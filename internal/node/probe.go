package node

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
)

// NotAvailable is reported for any metric that could not be read.
const NotAvailable = "N/A"

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

// SystemProbe reads host metrics with uptime, free, df and /proc/loadavg.
type SystemProbe struct {
	runner   Runner
	readFile func(string) ([]byte, error)
	numCPU   int
	log      *slog.Logger
}

var _ monitor.SystemSource = (*SystemProbe)(nil)

func NewSystemProbe(runner Runner, log *slog.Logger) *SystemProbe {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &SystemProbe{
		runner:   runner,
		readFile: os.ReadFile,
		numCPU:   runtime.NumCPU(),
		log:      log,
	}
}

// SystemInfo never fails; unreadable values are NotAvailable.
func (p *SystemProbe) SystemInfo(ctx context.Context) (*monitor.SystemInfo, error) {
	return &monitor.SystemInfo{
		Uptime:  p.uptime(ctx),
		CPULoad: p.cpuLoad(),
		Memory:  p.memory(ctx),
		Disk:    p.disk(ctx),
	}, nil
}

func (p *SystemProbe) uptime(ctx context.Context) string {
	out, err := p.runner.Run(ctx, "uptime", "-p")
	if err != nil {
		p.log.Debug("uptime probe failed", slog.Any("error", err))
		return NotAvailable
	}

	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "up ")
	if out == "" {
		return NotAvailable
	}
	return out
}

// memory renders "used / total" from the Mem: row of free -h.
func (p *SystemProbe) memory(ctx context.Context) string {
	out, err := p.runner.Run(ctx, "free", "-h")
	if err != nil {
		p.log.Debug("memory probe failed", slog.Any("error", err))
		return NotAvailable
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == "Mem:" {
			return fields[2] + " / " + fields[1]
		}
	}
	return NotAvailable
}

// disk renders "used / size" from the last row of df -h /.
func (p *SystemProbe) disk(ctx context.Context) string {
	out, err := p.runner.Run(ctx, "df", "-h", "/")
	if err != nil {
		p.log.Debug("disk probe failed", slog.Any("error", err))
		return NotAvailable
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return NotAvailable
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 3 {
		return NotAvailable
	}
	return fields[2] + " / " + fields[1]
}

// cpuLoad is the one-minute load average as a percentage of available CPUs.
func (p *SystemProbe) cpuLoad() string {
	raw, err := p.readFile("/proc/loadavg")
	if err != nil {
		return NotAvailable
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return NotAvailable
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || p.numCPU <= 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%.0f%%", load/float64(p.numCPU)*100)
}
