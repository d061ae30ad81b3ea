package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/coldline/postgresql-exporter/cmd/compressors"
	"github.com/coldline/postgresql-exporter/cmd/formatters"
)

type partitionStartMsg struct {
	index    int
	dateKey  string
	rowCount int
}

type partitionDoneMsg struct {
	index  int
	result PartitionResult
}

type exportDoneMsg struct{}

var (
	progressTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFAA00")).
				Bold(true).
				Margin(0, 2)

	progressStageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Margin(0, 2)

	progressHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#626262")).
				Margin(0, 2)
)

type exportProgressModel struct {
	table           string
	total           int
	completed       int
	currentKey      string
	currentRows     int
	overallProgress progress.Model
	currentSpinner  spinner.Model
	lines           []string
	done            bool
	startTime       time.Time
}

func newExportProgressModel(table string, total int) exportProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	overall := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(60),
	)

	return exportProgressModel{
		table:           table,
		total:           total,
		overallProgress: overall,
		currentSpinner:  s,
		startTime:       time.Now(),
	}
}

func (m exportProgressModel) Init() tea.Cmd {
	return m.currentSpinner.Tick
}

func (m exportProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case partitionStartMsg:
		m.currentKey = msg.dateKey
		m.currentRows = msg.rowCount
		return m, nil

	case partitionDoneMsg:
		m.completed++
		m.lines = append(m.lines, renderResultLine(msg.result))
		return m, nil

	case exportDoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.currentSpinner, cmd = m.currentSpinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m exportProgressModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(progressTitleStyle.Render(fmt.Sprintf("Exporting %s", m.table)))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString("  " + line + "\n")
	}

	if !m.done && m.currentKey != "" {
		b.WriteString(progressStageStyle.Render(fmt.Sprintf("%s Partition %s (%d rows)",
			m.currentSpinner.View(), m.currentKey, m.currentRows)))
		b.WriteString("\n")
	}

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.completed) / float64(m.total)
	}
	b.WriteString("\n  " + m.overallProgress.ViewAs(pct) + "\n")
	b.WriteString(progressHelpStyle.Render(fmt.Sprintf("%d/%d partitions · %s elapsed · press q to quit",
		m.completed, m.total, time.Since(m.startTime).Round(time.Second))))
	b.WriteString("\n")

	return b.String()
}

func renderResultLine(r PartitionResult) string {
	switch {
	case r.Error != nil:
		return fmt.Sprintf("❌ %s failed at %s: %v", r.DateKey, r.Stage, r.Error)
	case r.Skipped:
		return fmt.Sprintf("⏭️  %s: %s", r.DateKey, r.SkipReason)
	case r.DeleteSkipped:
		return fmt.Sprintf("⚠️  %s uploaded, delete skipped: %s", r.DateKey, r.SkipReason)
	default:
		return fmt.Sprintf("✅ %s: %d rows, %d bytes", r.DateKey, r.RowCount, r.BytesWritten)
	}
}

// runWithProgress drives the partition loop under the progress display. The
// pipeline itself stays sequential; only the rendering runs alongside it.
func (e *Exporter) runWithProgress(ctx context.Context, formatter formatters.Formatter, compressor compressors.Compressor, partitions []Partition) []PartitionResult {
	resultsChan := make(chan []PartitionResult, 1)

	model := newExportProgressModel(e.config.Table, len(partitions))
	program := tea.NewProgram(model, tea.WithoutSignalHandler())

	go func() {
		results := e.processPartitions(ctx, formatter, compressor, partitions, func(msg interface{}) {
			program.Send(msg)
		})
		resultsChan <- results
		program.Send(exportDoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		e.logger.Error(fmt.Sprintf("error running progress display: %v", err))
	}

	return <-resultsChan
}
