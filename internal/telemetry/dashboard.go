package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/probelab/tcpwatch/internal/storage"
)

// sparklineWidth bounds how many recent samples a line chart keeps,
// matching the terminal-width sparkline rendering original_source's
// dashboard.rs draws with tui-rs' Sparkline widget — no charting
// library appears anywhere in the retrieved pack, so this is
// hand-rolled rather than borrowed (see DESIGN.md).
const sparklineWidth = 60

var sparkRunes = []rune(" ▁▂▃▄▅▆▇█")

// Sample is one dashboard tick's worth of readings.
type Sample struct {
	IngressRate float64
	EgressRate  float64
	SendRate    float64
	RecvRate    float64
	Flows       []storage.FlowKey
	CaptureSize int64
}

// Sampler produces one Sample per dashboard tick. cmd/tcpwatch wires
// this to the running ringbuf.Sources, the kernel flow-key map, and
// os.Stat over each capture file.
type Sampler interface {
	Sample() (Sample, error)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type tickMsg time.Time

// Model is the bubbletea model for the live capture dashboard.
//
// Grounded on _examples/other_examples's thobiasn-tori-cli TUI (ring
// buffers of recent samples feeding sparkline-shaped history, a
// periodic tea.Tick driving resampling) adapted from a metrics client
// to a local sampler since this dashboard has no server round trip.
type Model struct {
	sampler  Sampler
	interval time.Duration
	runID    string
	started  time.Time
	cancel   context.CancelFunc

	ingressHist []float64
	egressHist  []float64
	sendHist    []float64
	recvHist    []float64

	flows       []storage.FlowKey
	captureSize int64
	scroll      int

	err  error
	done bool
}

// NewModel creates a dashboard model sampling at interval and calling
// cancel when the user requests shutdown.
func NewModel(sampler Sampler, interval time.Duration, runID string, cancel context.CancelFunc) Model {
	return Model{
		sampler:  sampler,
		interval: interval,
		runID:    runID,
		started:  time.Now(),
		cancel:   cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements the dashboard's tick → resample → render loop and
// the keyboard dispatch spec.md §4.6 describes as running "inside the
// same loop": cancellation keys toggle the shared cancellation signal,
// scroll keys move the flow table's window.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			if m.scroll < len(m.flows)-1 {
				m.scroll++
			}
		}
		return m, nil
	case tickMsg:
		s, err := m.sampler.Sample()
		if err != nil {
			m.err = err
			return m, tick(m.interval)
		}
		m.err = nil
		m.ingressHist = pushHist(m.ingressHist, s.IngressRate)
		m.egressHist = pushHist(m.egressHist, s.EgressRate)
		m.sendHist = pushHist(m.sendHist, s.SendRate)
		m.recvHist = pushHist(m.recvHist, s.RecvRate)
		m.flows = s.Flows
		m.captureSize = s.CaptureSize
		return m, tick(m.interval)
	default:
		return m, nil
	}
}

func pushHist(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > sparklineWidth {
		hist = hist[len(hist)-sparklineWidth:]
	}
	return hist
}

func (m Model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tcpwatch — live capture") + "\n\n")

	b.WriteString(panelStyle.Render(
		headerStyle.Render("packet rate") + "\n" +
			sparkline(m.ingressHist) + "  " + dimStyle.Render("ingress") + "\n" +
			sparkline(m.egressHist) + "  " + dimStyle.Render("egress"),
	) + "\n")

	b.WriteString(panelStyle.Render(
		headerStyle.Render("kernel-call rate") + "\n" +
			sparkline(m.sendHist) + "  " + dimStyle.Render("send") + "\n" +
			sparkline(m.recvHist) + "  " + dimStyle.Render("recv"),
	) + "\n")

	b.WriteString(panelStyle.Render(m.flowTable()) + "\n")
	b.WriteString(panelStyle.Render(m.statusPanel()) + "\n")
	b.WriteString(dimStyle.Render("q: quit   ↑/↓: scroll flows") + "\n")
	return b.String()
}

func sparkline(hist []float64) string {
	if len(hist) == 0 {
		return dimStyle.Render(strings.Repeat(" ", sparklineWidth))
	}
	max := hist[0]
	for _, v := range hist {
		if v > max {
			max = v
		}
	}
	var b strings.Builder
	for _, v := range hist {
		if max == 0 {
			b.WriteRune(sparkRunes[0])
			continue
		}
		idx := int(v / max * float64(len(sparkRunes)-1))
		if idx >= len(sparkRunes) {
			idx = len(sparkRunes) - 1
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

const flowTableRows = 8

func (m Model) flowTable() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("active flows (%d)", len(m.flows))) + "\n")
	if len(m.flows) == 0 {
		b.WriteString(dimStyle.Render("(none observed yet)"))
		return b.String()
	}
	start := m.scroll
	if start > len(m.flows)-1 {
		start = len(m.flows) - 1
	}
	end := start + flowTableRows
	if end > len(m.flows) {
		end = len(m.flows)
	}
	for _, k := range m.flows[start:end] {
		fmt.Fprintf(&b, "%-18s %-18s %5d -> %5d\n", k.Src, k.Dst, k.SPort, k.DPort)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) statusPanel() string {
	uptime := time.Since(m.started).Round(time.Second)
	status := fmt.Sprintf("run %s   uptime %s   capture size %s", m.runID, uptime, FormatBytes(m.captureSize))
	if m.err != nil {
		status += "   " + lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("sample error: "+m.err.Error())
	}
	return status
}
