package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igmonitor/pkg/models"
)

// CollectionState represents where a collection is in its lifecycle
type CollectionState int

const (
	CollectionPending CollectionState = iota
	CollectionActive
	CollectionCompleted
	CollectionIncomplete
)

// CollectionItem is one (subject, kind) row of the dashboard
type CollectionItem struct {
	Key       string
	Subject   string
	Kind      models.Kind
	Estimate  int
	Seeded    int
	Total     int
	State     CollectionState
	Status    models.Status
	StartTime time.Time
	EndTime   time.Time
}

// Ratio is the collected fraction of the estimate, capped at 1
func (c *CollectionItem) Ratio() float64 {
	if c.Estimate <= 0 {
		return 0
	}
	r := float64(c.Total) / float64(c.Estimate)
	if r > 1 {
		r = 1
	}
	return r
}

// Rate is the number of identifiers fetched per minute in this session
func (c *CollectionItem) Rate(now time.Time) float64 {
	end := now
	if !c.EndTime.IsZero() {
		end = c.EndTime
	}
	elapsed := end.Sub(c.StartTime)
	if elapsed <= 0 {
		return 0
	}
	return float64(c.Total-c.Seeded) / elapsed.Minutes()
}

func itemKey(subject string, kind models.Kind) string {
	return subject + "/" + string(kind)
}

// Model represents the TUI model
type Model struct {
	// UI components
	spinner      spinner.Model
	progressBars map[string]progress.Model

	// Collection state
	collections map[string]*CollectionItem
	order       []string
	active      int

	// Stats
	totalCollected   int
	sessionStartTime time.Time

	// Rate governor
	rateLimitMax      int
	rateLimitUsed     int
	rateLimitResetAt  time.Time
	cooldownRemaining time.Duration

	// UI state
	width          int
	height         int
	showHelp       bool
	done           bool
	logMessages    []LogMessage
	maxLogMessages int

	onQuit func()
	now    func() time.Time

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a dashboard with a pending row for both kinds of every
// subject
func NewModel(subjects []string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	m := &Model{
		spinner:          s,
		progressBars:     make(map[string]progress.Model),
		collections:      make(map[string]*CollectionItem),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		rateLimitMax:     15,
		now:              time.Now,
	}
	for _, subject := range subjects {
		for _, kind := range models.Kinds {
			m.addCollection(subject, kind)
		}
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// addCollection registers a row; the caller holds mu or owns m exclusively
func (m *Model) addCollection(subject string, kind models.Kind) *CollectionItem {
	key := itemKey(subject, kind)
	if item, ok := m.collections[key]; ok {
		return item
	}
	item := &CollectionItem{Key: key, Subject: subject, Kind: kind, State: CollectionPending}
	m.collections[key] = item
	m.order = append(m.order, key)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40
	m.progressBars[key] = p
	return item
}

// StartCollection marks a collection as active
func (m *Model) StartCollection(subject string, kind models.Kind, estimate, seeded int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.addCollection(subject, kind)
	if item.State != CollectionActive {
		m.active++
	}
	item.State = CollectionActive
	item.Estimate = estimate
	item.Seeded = seeded
	item.Total = seeded
	item.StartTime = m.now()
	item.EndTime = time.Time{}
}

// AdvanceCollection records the running total of a collection
func (m *Model) AdvanceCollection(subject string, kind models.Kind, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.collections[itemKey(subject, kind)]; ok && item.State == CollectionActive {
		m.totalCollected += total - item.Total
		item.Total = total
	}
}

// FinishCollection records the outcome of a collection
func (m *Model) FinishCollection(subject string, kind models.Kind, status models.Status, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.collections[itemKey(subject, kind)]
	if !ok || item.State != CollectionActive {
		return
	}
	m.active--
	m.totalCollected += total - item.Total
	item.Total = total
	item.Status = status
	item.EndTime = m.now()
	if status == models.StatusComplete {
		item.State = CollectionCompleted
	} else {
		item.State = CollectionIncomplete
	}
}

// UpdateRateLimit updates the governor's window usage
func (m *Model) UpdateRateLimit(used, max int, resetAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rateLimitUsed = used
	m.rateLimitMax = max
	m.rateLimitResetAt = resetAt
}

// UpdateCooldown records the remaining cool-down; zero ends it
func (m *Model) UpdateCooldown(remaining time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldownRemaining = remaining
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = neonRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// collectionsIn returns copies of the rows in the given states, in
// registration order
func (m *Model) collectionsIn(states ...CollectionState) []CollectionItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CollectionItem
	for _, key := range m.order {
		item := m.collections[key]
		for _, s := range states {
			if item.State == s {
				out = append(out, *item)
				break
			}
		}
	}
	return out
}

// GetActiveCollections returns the collections in progress
func (m *Model) GetActiveCollections() []CollectionItem {
	return m.collectionsIn(CollectionActive)
}

// GetPendingCollections returns the collections not started yet
func (m *Model) GetPendingCollections() []CollectionItem {
	return m.collectionsIn(CollectionPending)
}

// GetFinishedCollections returns completed and incomplete collections
func (m *Model) GetFinishedCollections() []CollectionItem {
	return m.collectionsIn(CollectionCompleted, CollectionIncomplete)
}

// Stats summarises the session
type Stats struct {
	Elapsed   time.Duration
	Collected int
	Active    int
	Finished  int
	Total     int
	// Rate is identifiers fetched per minute across the session
	Rate float64
}

// GetStats returns session statistics
func (m *Model) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		Elapsed:   m.now().Sub(m.sessionStartTime),
		Collected: m.totalCollected,
		Active:    m.active,
		Total:     len(m.order),
	}
	for _, item := range m.collections {
		if item.State == CollectionCompleted || item.State == CollectionIncomplete {
			st.Finished++
		}
	}
	if st.Elapsed > 0 {
		st.Rate = float64(m.totalCollected) / st.Elapsed.Minutes()
	}
	return st
}
