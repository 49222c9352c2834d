package watchlist

import (
	"fmt"
	"log"
	"sync"
	"time"

	"twse_alert_backend/models"
	"twse_alert_backend/services/notify"
)

// Market session window, inclusive on both ends. TWSE trades weekdays
// 09:00:00-13:30:00; exchange holidays are not accounted for.
const (
	marketOpenSecond  = 9 * 3600
	marketCloseSecond = 13*3600 + 30*60
)

// DefaultPollInterval matches the reference polling cadence.
const DefaultPollInterval = 30 * time.Second

// Clock abstracts wall-clock time so tests can drive the engine with a
// fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// QuoteFetcher returns a quote per resolvable instrument code. Codes
// with no result are omitted, which is not an error for the batch.
type QuoteFetcher func(codes []string) (map[string]models.Quote, error)

// HistoryRecorder receives a record of every fired alert. Recording is
// best-effort.
type HistoryRecorder interface {
	Record(entry models.AlertHistory)
}

// IsMarketOpenAt reports whether t falls inside the trading session:
// Monday through Friday, 09:00:00 to 13:30:00 inclusive. It is a pure
// function of the wall clock and ignores exchange holidays.
func IsMarketOpenAt(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return sec >= marketOpenSecond && sec <= marketCloseSecond
}

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	PollInterval time.Duration
	Location     *time.Location
	SoundEnabled bool
	SoundFile    string
}

// Engine polls quotes for all watched instruments on a fixed cadence
// during market hours, evaluates alert rules, records newly fired rules
// in the trigger ledger, and hands notifications to the sink. Polls are
// serialized: a tick arriving while a poll is still in flight is
// skipped, never queued.
type Engine struct {
	store   *Store
	fetch   QuoteFetcher
	sink    notify.Sink
	history HistoryRecorder
	clock   Clock
	cfg     EngineConfig

	onStatus func(status string)

	mu       sync.Mutex
	running  bool
	inFlight bool
	stopChan chan struct{}
	status   string
}

// NewEngine wires the engine with its collaborators. history may be nil.
func NewEngine(store *Store, fetch QuoteFetcher, sink notify.Sink, history HistoryRecorder, clock Clock, cfg EngineConfig) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		store:   store,
		fetch:   fetch,
		sink:    sink,
		history: history,
		clock:   clock,
		cfg:     cfg,
		status:  models.StatusStopped,
	}
}

// OnStatus registers a callback invoked on every status change.
func (e *Engine) OnStatus(fn func(status string)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

// Status returns the current monitor status string.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Running reports whether the polling loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) setStatus(status string) {
	e.mu.Lock()
	e.status = status
	fn := e.onStatus
	e.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}

// Start moves the engine to Running: one immediate poll, then a fixed
// cadence timer. Calling Start while already Running is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	stop := e.stopChan
	e.mu.Unlock()

	go e.loop(stop)
	log.Printf("Watchlist monitor started (interval: %v)", e.cfg.PollInterval)
}

// Stop cancels the timer. A poll already in flight is allowed to finish
// writing, but no further polls are scheduled. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.mu.Unlock()

	e.setStatus(models.StatusStopped)
	log.Println("Watchlist monitor stopped")
}

func (e *Engine) loop(stop chan struct{}) {
	// Immediate first check on entry.
	if err := e.pollGuarded(); err != nil {
		log.Printf("Watchlist check failed: %v", err)
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick performs one timer cycle: outside market hours it publishes the
// non-trading status without touching the network; inside, it polls
// unless a poll is already in flight.
func (e *Engine) Tick() {
	if !IsMarketOpenAt(e.clock.Now().In(e.cfg.Location)) {
		e.setStatus(models.StatusNonTrading)
		return
	}
	if err := e.pollGuarded(); err != nil {
		log.Printf("Watchlist check failed: %v", err)
	}
}

// Check performs exactly one poll regardless of scheduler state or
// market hours, e.g. right after the rule set changes.
func (e *Engine) Check() error {
	return e.pollGuarded()
}

// pollGuarded enforces the single poll-in-flight invariant. An
// overlapping request is skipped rather than queued.
func (e *Engine) pollGuarded() error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()
	return e.poll()
}

// poll runs one full cycle: batch fetch, evaluate every item, persist
// newly fired rules, notify. A fetch failure leaves all trigger state
// unchanged.
func (e *Engine) poll() error {
	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()

	items := e.store.GetAll()
	if len(items) == 0 {
		e.setStatus(models.StatusIdle)
		return nil
	}

	codes := distinctCodes(items)
	quotes, err := e.fetch(codes)
	if err != nil {
		e.setStatus(models.StatusCheckFailed)
		return fmt.Errorf("quote fetch failed: %w", err)
	}

	for _, item := range items {
		quote, ok := quotes[item.Code]
		if !ok {
			continue
		}
		fired := Evaluate(item, quote)
		if len(fired) == 0 {
			continue
		}

		ruleIDs := make([]string, len(fired))
		for i, idx := range fired {
			ruleIDs[i] = item.Rules[idx].ID
		}
		if err := e.store.MarkTriggered(item.ID, ruleIDs); err != nil {
			// Ledger not committed; skip notifying so the rules fire
			// again once persistence recovers, instead of notifying
			// now and forgetting we did.
			log.Printf("Failed to persist triggers for %s: %v", item.Code, err)
			continue
		}

		for _, idx := range fired {
			e.emit(item, item.Rules[idx], quote)
		}
	}

	// Stop may have landed while this poll was in flight; the stopped
	// status it published must stand.
	e.mu.Lock()
	stoppedMeanwhile := wasRunning && !e.running
	e.mu.Unlock()
	if stoppedMeanwhile {
		return nil
	}

	now := e.clock.Now().In(e.cfg.Location)
	e.setStatus(models.StatusRunningPrefix + now.Format("15:04"))
	return nil
}

// emit builds and dispatches one notification, recording it in the
// alert history when a recorder is configured.
func (e *Engine) emit(item models.WatchItem, rule models.AlertRule, quote models.Quote) {
	observed := ObservedValue(rule.Kind, quote)
	body := fmt.Sprintf("%s %s（現值 %s），現價 %s（%s%%）",
		rule.Kind.Label(),
		rule.Threshold.String(),
		observed.String(),
		quote.Price.String(),
		quote.ChangePercent.StringFixed(2))

	e.sink.Notify(models.Notification{
		Title:     fmt.Sprintf("到價提醒：%s (%s)", item.Name, item.Code),
		Body:      body,
		Code:      item.Code,
		Sound:     e.cfg.SoundEnabled,
		SoundFile: e.cfg.SoundFile,
	})

	if e.history != nil {
		e.history.Record(models.AlertHistory{
			ItemID:    item.ID,
			RuleID:    rule.ID,
			Code:      item.Code,
			Name:      item.Name,
			Kind:      rule.Kind.String(),
			Threshold: rule.Threshold,
			Observed:  observed,
			Price:     quote.Price,
			Message:   body,
		})
	}
}

// distinctCodes collects instrument codes across all items, first
// occurrence order, so shared instruments are fetched once per poll.
func distinctCodes(items []models.WatchItem) []string {
	seen := make(map[string]bool, len(items))
	var codes []string
	for _, item := range items {
		if !seen[item.Code] {
			seen[item.Code] = true
			codes = append(codes, item.Code)
		}
	}
	return codes
}
