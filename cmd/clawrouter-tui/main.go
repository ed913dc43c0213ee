// Command clawrouter-tui is a terminal dashboard for a running ClawRouter
// proxy. It polls /health and /stats and renders live routing counters.
//
// Usage:
//
//	clawrouter-tui --addr http://127.0.0.1:18800
//
// Works over SSH, tmux, screen; no GUI needed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 2 * time.Second

func main() {
	addr := flag.String("addr", "http://127.0.0.1:18800", "proxy base URL")
	flag.Parse()

	p := tea.NewProgram(newModel(strings.TrimRight(*addr, "/")), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ─────────────────────────────────────────────────────
// Messages
// ─────────────────────────────────────────────────────

type healthInfo struct {
	Status        string  `json:"status"`
	Wallet        string  `json:"wallet"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type statsInfo struct {
	TotalRequests   int64            `json:"totalRequests"`
	TotalFailures   int64            `json:"totalFailures"`
	ByTier          map[string]int64 `json:"byTier"`
	ByModel         map[string]int64 `json:"byModel"`
	TotalSavingsUSD float64          `json:"totalSavingsUSD"`
}

type pollMsg struct {
	health healthInfo
	stats  statsInfo
	err    error
}

type tickMsg struct{}

// ─────────────────────────────────────────────────────
// Styles
// ─────────────────────────────────────────────────────

var (
	primaryColor = lipgloss.Color("#7C3AED") // violet
	mutedColor   = lipgloss.Color("#6B7280") // gray
	successColor = lipgloss.Color("#10B981") // green
	errorColor   = lipgloss.Color("#EF4444") // red

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))
	okStyle    = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	downStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	savedStyle = lipgloss.NewStyle().Foreground(successColor)
	footStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

// ─────────────────────────────────────────────────────
// Model
// ─────────────────────────────────────────────────────

type model struct {
	addr    string
	client  *http.Client
	spin    spinner.Model
	health  healthInfo
	stats   statsInfo
	lastErr error
	gotData bool
}

func newModel(addr string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return model{
		addr:   addr,
		client: &http.Client{Timeout: 3 * time.Second},
		spin:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.poll
		}

	case pollMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.health = msg.health
			m.stats = msg.stats
			m.gotData = true
		}
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })

	case tickMsg:
		return m, m.poll

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) poll() tea.Msg {
	var out pollMsg
	if err := m.fetch("/health", &out.health); err != nil {
		out.err = err
		return out
	}
	if err := m.fetch("/stats", &out.stats); err != nil {
		out.err = err
	}
	return out
}

func (m model) fetch(path string, v any) error {
	resp, err := m.client.Get(m.addr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// ─────────────────────────────────────────────────────
// View
// ─────────────────────────────────────────────────────

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(" ClawRouter ") + "  " + m.addr + "\n\n")

	if m.lastErr != nil {
		b.WriteString(panelStyle.Render(
			downStyle.Render("UNREACHABLE") + "\n\n" +
				labelStyle.Render(m.lastErr.Error()) + "\n\n" +
				m.spin.View() + " retrying",
		))
		b.WriteString("\n" + footStyle.Render("q quit · r refresh"))
		return b.String()
	}

	if !m.gotData {
		b.WriteString(m.spin.View() + " connecting...\n")
		return b.String()
	}

	status := panelStyle.Render(strings.Join([]string{
		labelStyle.Render("status  ") + okStyle.Render(m.health.Status),
		labelStyle.Render("wallet  ") + valueStyle.Render(m.health.Wallet),
		labelStyle.Render("uptime  ") + valueStyle.Render(formatUptime(m.health.UptimeSeconds)),
		labelStyle.Render("saved   ") + savedStyle.Render(fmt.Sprintf("$%.4f", m.stats.TotalSavingsUSD)),
		labelStyle.Render("failed  ") + valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFailures)),
	}, "\n"))

	tiers := panelStyle.Render(
		labelStyle.Render("requests by tier") + "\n\n" + countTable(m.stats.ByTier, m.stats.TotalRequests),
	)
	models := panelStyle.Render(
		labelStyle.Render("requests by model") + "\n\n" + countTable(m.stats.ByModel, m.stats.TotalRequests),
	)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, status, " ", tiers))
	b.WriteString("\n")
	b.WriteString(models)
	b.WriteString("\n" + footStyle.Render("q quit · r refresh"))
	return b.String()
}

func countTable(counts map[string]int64, total int64) string {
	if len(counts) == 0 {
		return labelStyle.Render("no traffic yet")
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	var rows []string
	for _, k := range keys {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(counts[k]) / float64(total)
		}
		rows = append(rows, fmt.Sprintf("%s %s",
			valueStyle.Render(fmt.Sprintf("%-22s %6d", k, counts[k])),
			labelStyle.Render(fmt.Sprintf("%5.1f%%", pct)),
		))
	}
	return strings.Join(rows, "\n")
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
