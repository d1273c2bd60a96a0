package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/slicesim/slicesim/server"
	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

var (
	accent = lipgloss.Color("#7D56F4")
	muted  = lipgloss.Color("#666666")
	good   = lipgloss.Color("#00CC66")
	bad    = lipgloss.Color("#FF4444")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true).Width(16)
	labelStyle  = lipgloss.NewStyle().Foreground(muted).Width(24)
	cellStyle   = lipgloss.NewStyle().Width(16)
	ruleStyle   = lipgloss.NewStyle().Foreground(muted)
)

const ruleWidth = 72

func statusStyle(s orchestrator.RunStatus) lipgloss.Style {
	switch s {
	case orchestrator.StatusCompleted:
		return lipgloss.NewStyle().Bold(true).Foreground(good)
	case orchestrator.StatusError:
		return lipgloss.NewStyle().Bold(true).Foreground(bad)
	default:
		return lipgloss.NewStyle().Bold(true)
	}
}

func rule(w io.Writer) {
	fmt.Fprintln(w, ruleStyle.Render(strings.Repeat("─", ruleWidth)))
}

// newTickBar tracks elapsed time units of a run.
func newTickBar(duration int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(duration,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("simulating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// renderSummary prints the run totals followed by the last result of every slice.
func renderSummary(w io.Writer, v orchestrator.RunView) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s  %s\n", titleStyle.Render("RUN"), v.ID, statusStyle(v.Status).Render(string(v.Status)))
	if v.Error != "" {
		fmt.Fprintln(w, lipgloss.NewStyle().Foreground(bad).Render(v.Error))
	}
	rule(w)

	pattern := v.Request.Pattern
	if pattern == "" {
		pattern = "constant"
	}
	t := v.Totals
	for _, row := range [][2]string{
		{"Request", fmt.Sprintf("%d packets over %d units (%s)", v.Request.TrafficVolume, v.Request.Duration, pattern)},
		{"Ticks", fmt.Sprint(t.Ticks)},
		{"Traffic generated", fmt.Sprint(t.TrafficGenerated)},
		{"Packets processed", fmt.Sprint(t.PacketsProcessed)},
		{"Packets dropped", fmt.Sprintf("%d (%d preempted)", t.PacketsDropped, t.PacketsPreempted)},
		{"Packets aggregated", fmt.Sprint(t.PacketsAggregated)},
		{"Retransmissions", fmt.Sprint(t.PacketsRetransmitted)},
		{"QoS violations", fmt.Sprint(t.QoSViolations)},
		{"Slice failures", fmt.Sprint(t.SliceFailures)},
	} {
		fmt.Fprintln(w, labelStyle.Render(row[0])+row[1])
	}
	if v.StartedAt != nil && v.EndedAt != nil {
		fmt.Fprintln(w, labelStyle.Render("Wall time")+v.EndedAt.Sub(*v.StartedAt).Round(time.Millisecond).String())
	}

	if len(v.Latest) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("LAST TICK"))
	rule(w)
	header := labelStyle.Render("")
	for _, slice := range sim.SliceOrder {
		if _, ok := v.Latest[slice]; ok {
			header += headerStyle.Render(string(slice))
		}
	}
	fmt.Fprintln(w, header)
	for _, row := range []struct {
		label string
		cell  func(*sim.BatchResult) string
	}{
		{"Processed", func(r *sim.BatchResult) string { return fmt.Sprintf("%d/%d", r.PacketsProcessed, r.PacketsReceived) }},
		{"Success rate %", func(r *sim.BatchResult) string { return fmt.Sprintf("%.1f", r.SuccessRate) }},
		{"QoS compliance %", func(r *sim.BatchResult) string { return fmt.Sprintf("%.1f", r.QoSComplianceRate) }},
		{"Mean latency ms", func(r *sim.BatchResult) string { return fmt.Sprintf("%.2f", r.Metrics.Latency.Mean) }},
		{"Mean throughput Mbps", func(r *sim.BatchResult) string { return fmt.Sprintf("%.2f", r.Metrics.Throughput.Mean) }},
		{"Queue", func(r *sim.BatchResult) string { return fmt.Sprintf("%d/%d", r.QueueLength, r.QueueCapacity) }},
	} {
		line := labelStyle.Render(row.label)
		for _, slice := range sim.SliceOrder {
			if res, ok := v.Latest[slice]; ok {
				line += cellStyle.Render(row.cell(res))
			}
		}
		fmt.Fprintln(w, line)
	}
}

// renderProfiles prints one block per configured slice.
func renderProfiles(w io.Writer, profiles []server.ProfileView, patterns []string) {
	for _, p := range profiles {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render(string(p.Slice)))
		rule(w)
		for _, row := range [][2]string{
			{"Share", fmt.Sprintf("%.2f", p.Share)},
			{"Size bytes", fmt.Sprintf("%d..%d", p.Size.Min, p.Size.Max)},
			{"Priority", fmt.Sprintf("%d..%d", p.Priority.Min, p.Priority.Max)},
			{"Bandwidth Mbps", fmt.Sprintf("%g..%g", p.Bandwidth.Min, p.Bandwidth.Max)},
			{"Latency target ms", fmt.Sprintf("%g..%g", p.Latency.Min, p.Latency.Max)},
			{"Loss tolerance %", fmt.Sprintf("%g..%g", p.LossTolerance.Min, p.LossTolerance.Max)},
			{"Queue", fmt.Sprintf("%d (%s)", p.QueueCapacity, p.Overflow)},
			{"Thresholds", thresholdText(p.Thresholds)},
		} {
			fmt.Fprintln(w, labelStyle.Render(row[0])+row[1])
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("Patterns")+strings.Join(patterns, ", "))
}

func thresholdText(t sim.Thresholds) string {
	var parts []string
	if t.MaxLatency > 0 {
		parts = append(parts, fmt.Sprintf("latency <= %gms", t.MaxLatency))
	}
	if t.MinThroughput > 0 {
		parts = append(parts, fmt.Sprintf("throughput >= %gMbps", t.MinThroughput))
	}
	if t.MinReliability > 0 {
		parts = append(parts, fmt.Sprintf("reliability >= %g%%", t.MinReliability))
	}
	if t.MaxDropRate > 0 {
		parts = append(parts, fmt.Sprintf("drop rate <= %g%%", t.MaxDropRate))
	}
	if t.MaxJitter > 0 {
		parts = append(parts, fmt.Sprintf("jitter <= %gms", t.MaxJitter))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
