package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"storecache/pkg/lock"
	"storecache/pkg/objectid"
	"storecache/pkg/store"
)

var flagWatchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard over Store stats, cache metrics, and the lock wait-for graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := newStore()
		if err != nil {
			return err
		}
		defer cleanup()

		p := tea.NewProgram(newWatchModel(s, flagWatchInterval))
		_, err = p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&flagWatchInterval, "interval", time.Second, "refresh interval")
}

// tickMsg drives the polling loop the way StoreMy's pkg/ui model advances
// its own periodic updates.
type tickMsg time.Time

type watchModel struct {
	store    *store.Store
	interval time.Duration

	stats   store.Stats
	metrics string
	locks   lock.Snapshot
}

func newWatchModel(s *store.Store, interval time.Duration) watchModel {
	return watchModel{store: s, interval: interval}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.stats = m.store.Stats()
		metrics := m.store.CacheMetrics()
		m.metrics = fmt.Sprintf("hits=%d misses=%d evictions=%d hit-rate=%.1f%%",
			metrics.Hits, metrics.Misses, metrics.Evictions, metrics.HitRate()*100)
		m.locks = m.store.LockSnapshot()
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}
	return m, nil
}

var (
	watchTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	watchLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	watchValue   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E2E8F0"))
	watchSection = lipgloss.NewStyle().Foreground(lipgloss.Color("#38BDF8")).Bold(true)
	watchHint    = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true)
)

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitle.Render("storecache watch") + "\n\n")

	b.WriteString(watchSection.Render("Transactions") + "\n")
	fmt.Fprintf(&b, "  %s %s  %s %s  %s %s  %s %s  %s %s\n",
		watchLabel.Render("begun"), watchValue.Render(fmt.Sprint(m.stats.Begun)),
		watchLabel.Render("active"), watchValue.Render(fmt.Sprint(m.stats.Active)),
		watchLabel.Render("committed"), watchValue.Render(fmt.Sprint(m.stats.Committed)),
		watchLabel.Render("aborted"), watchValue.Render(fmt.Sprint(m.stats.Aborted)),
		watchLabel.Render("in-flight"), watchValue.Render(fmt.Sprint(m.stats.InFlight)),
	)

	b.WriteString("\n" + watchSection.Render("Cache") + "\n")
	fmt.Fprintf(&b, "  %s\n", watchValue.Render(m.metrics))

	b.WriteString("\n" + watchSection.Render("Lock manager") + "\n")
	if len(m.locks.Holders) == 0 {
		b.WriteString("  " + watchHint.Render("no locks held") + "\n")
	}
	for _, id := range sortedObjectIDs(m.locks.Holders) {
		holder := m.locks.Holders[id]
		waiters := m.locks.Waiters[id]
		line := fmt.Sprintf("  object %v held by %v", id, holder)
		if len(waiters) > 0 {
			line += fmt.Sprintf(", waiters=%v", waiters)
		}
		b.WriteString(line + "\n")
	}

	if len(m.locks.WaitFor) > 0 {
		b.WriteString("\n" + watchSection.Render("Wait-for graph") + "\n")
		for _, from := range sortedTxnIDs(m.locks.WaitFor) {
			b.WriteString(fmt.Sprintf("  %v -> %v\n", from, m.locks.WaitFor[from]))
		}
	}

	b.WriteString("\n" + watchHint.Render("press q to quit") + "\n")
	return b.String()
}

func sortedObjectIDs(m map[objectid.ID]lock.TxnID) []objectid.ID {
	ids := make([]objectid.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedTxnIDs(m map[lock.TxnID][]lock.TxnID) []lock.TxnID {
	ids := make([]lock.TxnID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
