package usecase

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

const notifyTimeout = 10 * time.Second

// ConfirmationConfig controls the confirmation lifecycle.
type ConfirmationConfig struct {
	Timeout       time.Duration
	CheckInterval time.Duration
	MaxAttempts   int
	Timeframe     repository.Timeframe
	Bars          int
	// HistoryLimit bounds the in-memory confirmed and rejected lists.
	HistoryLimit int
	Location     *time.Location
	Criteria     CriteriaConfig
}

func DefaultConfirmationConfig() ConfirmationConfig {
	return ConfirmationConfig{
		Timeout:       4 * time.Hour,
		CheckInterval: 5 * time.Minute,
		MaxAttempts:   12,
		Timeframe:     repository.TF1h,
		Bars:          5,
		HistoryLimit:  500,
		Location:      time.UTC,
		Criteria:      DefaultCriteriaConfig(),
	}
}

// TickResult summarizes one confirmation round.
type TickResult struct {
	Checked   int
	Confirmed int
	Rejected  int
	Expired   int
	Pending   int
}

// ConfirmationOption configures ConfirmationManager.
type ConfirmationOption func(*ConfirmationManager)

// WithConfirmationClock overrides the clock used by manual operations.
func WithConfirmationClock(now func() time.Time) ConfirmationOption {
	return func(m *ConfirmationManager) { m.now = now }
}

// WithIDGenerator overrides signal id generation.
func WithIDGenerator(gen func() string) ConfirmationOption {
	return func(m *ConfirmationManager) { m.newID = gen }
}

// ConfirmationManager runs pending signals through time-boxed confirmation.
// A signal leaves the pending pool exactly once, as confirmed, rejected or expired.
type ConfirmationManager struct {
	cfg      ConfirmationConfig
	md       repository.MarketData
	corr     repository.CorrelationAnalyzer
	store    repository.SignalStore
	notifier repository.Notifier
	metrics  repository.Metrics
	log      *applogger.Logger
	now      func() time.Time
	newID    func() string
	active   atomic.Bool

	mu                sync.Mutex
	pending           map[string]*models.PendingSignal
	order             []string
	byKey             map[models.SignalKey]string
	confirmed         []models.ConfirmedSignal
	rejected          []models.RejectedSignal
	confirmedCount    int
	rejectedCount     int
	expiredCount      int
	confirmedAttempts int
	daily             map[models.SignalKey]struct{}
	lastResetDate     string
}

func NewConfirmationManager(cfg ConfirmationConfig, md repository.MarketData, corr repository.CorrelationAnalyzer, store repository.SignalStore, notifier repository.Notifier, metrics repository.Metrics, log *applogger.Logger, opts ...ConfirmationOption) *ConfirmationManager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Bars < 3 {
		cfg.Bars = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	if log == nil {
		log = applogger.NewNop()
	}
	m := &ConfirmationManager{
		cfg:      cfg,
		md:       md,
		corr:     corr,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With(applogger.String("component", "confirmation")),
		now:      time.Now,
		newID:    uuid.NewString,
		pending:  make(map[string]*models.PendingSignal),
		byKey:    make(map[models.SignalKey]string),
		daily:    make(map[models.SignalKey]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastResetDate = util.DayKey(m.now(), cfg.Location)
	return m
}

// SetActive marks whether the periodic tick is running.
func (m *ConfirmationManager) SetActive(v bool) { m.active.Store(v) }

// Admit places a candidate into the pending pool. A pair already pending
// returns the existing id; a pair confirmed today is refused with an empty id.
func (m *ConfirmationManager) Admit(ctx context.Context, c models.CandidateSignal, now time.Time) (string, bool) {
	key := c.Key()
	m.mu.Lock()
	if _, done := m.daily[key]; done {
		m.mu.Unlock()
		m.log.Debug("pair already confirmed today", applogger.String("pair", key.String()))
		return "", false
	}
	if id, ok := m.byKey[key]; ok {
		m.mu.Unlock()
		return id, false
	}
	p := &models.PendingSignal{
		CandidateSignal: c,
		ID:              m.newID(),
		AdmittedAt:      now,
		ExpiresAt:       now.Add(m.cfg.Timeout),
		LastCheck:       now,
	}
	m.insertLocked(p)
	snapshot := *p
	size := len(m.pending)
	m.mu.Unlock()

	if err := m.store.SaveCandidate(ctx, snapshot); err != nil {
		m.log.Warn("persist pending signal failed", applogger.String("id", snapshot.ID), applogger.Error(err))
		m.recordError("store")
	}
	if m.metrics != nil {
		m.metrics.SetPending(size)
	}
	m.log.Info("signal admitted",
		applogger.String("id", snapshot.ID),
		applogger.String("pair", key.String()),
		applogger.Float64("score", c.QualityScore),
		applogger.String("tier", string(c.Tier)))
	return snapshot.ID, true
}

func (m *ConfirmationManager) insertLocked(p *models.PendingSignal) {
	m.pending[p.ID] = p
	m.order = append(m.order, p.ID)
	m.byKey[p.Key()] = p.ID
}

// Tick runs one confirmation round using a single now for every signal.
// Market data is fetched outside the lock; state changes re-acquire it.
func (m *ConfirmationManager) Tick(ctx context.Context, now time.Time) TickResult {
	var (
		res     TickResult
		expired []decision
		checks  []models.PendingSignal
	)

	m.mu.Lock()
	for _, id := range m.order {
		p := m.pending[id]
		p.Attempts++
		p.LastCheck = now
		switch {
		case now.After(p.ExpiresAt):
			expired = append(expired, decision{id: id, reasons: []string{ReasonTimeoutExpired}})
		case p.Attempts > m.cfg.MaxAttempts:
			expired = append(expired, decision{id: id, reasons: []string{ReasonMaxAttempts}})
		default:
			checks = append(checks, *p)
		}
	}
	m.mu.Unlock()
	res.Checked = len(expired) + len(checks)

	for _, d := range expired {
		if m.finalize(ctx, d.id, models.StatusExpired, d.reasons, now) {
			res.Expired++
		}
	}
	if len(checks) == 0 {
		res.Pending = m.pendingCount()
		return res
	}

	ref, err := m.corr.GetReferenceTrend(ctx)
	if err != nil {
		m.log.Warn("reference trend unavailable for confirmation", applogger.Error(err))
		ref = models.ReferenceTrend{Trend: models.TrendNeutral}
	}
	prices := m.lastPrices(ctx, checks)

	for _, p := range checks {
		if ctx.Err() != nil {
			break
		}
		v, ok := m.evaluate(ctx, p, prices, ref)
		if !ok {
			continue
		}
		switch v.Status {
		case models.StatusConfirmed:
			if m.finalize(ctx, p.ID, models.StatusConfirmed, v.Confirmations, now) {
				res.Confirmed++
			}
		case models.StatusRejected:
			if m.finalize(ctx, p.ID, models.StatusRejected, v.Rejections, now) {
				res.Rejected++
			}
		default:
			m.log.Debug("signal still pending",
				applogger.String("id", p.ID),
				applogger.Int("attempts", p.Attempts),
				applogger.Strings("votes", v.Reasons()))
		}
	}

	m.persistPending(ctx)
	res.Pending = m.pendingCount()
	m.log.Info("confirmation tick",
		applogger.Int("checked", res.Checked),
		applogger.Int("confirmed", res.Confirmed),
		applogger.Int("rejected", res.Rejected),
		applogger.Int("expired", res.Expired),
		applogger.Int("pending", res.Pending))
	return res
}

// evaluate votes on one signal. Missing data or a panic leaves the signal
// pending for the next tick.
func (m *ConfirmationManager) evaluate(ctx context.Context, p models.PendingSignal, prices map[string]float64, ref models.ReferenceTrend) (v Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("confirmation panic", applogger.String("id", p.ID), applogger.String("symbol", p.Symbol), applogger.Any("panic", r))
			m.recordError("confirmation_panic")
			v, ok = Verdict{}, false
		}
	}()

	bars, err := m.md.GetCandles(ctx, p.Symbol, m.cfg.Timeframe, m.cfg.Bars)
	if err != nil || len(bars) == 0 {
		m.log.Debug("confirmation data unavailable", applogger.String("id", p.ID), applogger.String("symbol", p.Symbol), applogger.Error(err))
		m.recordError("confirmation_data")
		return Verdict{}, false
	}
	price, found := prices[p.Symbol]
	if !found || price <= 0 {
		price = bars[len(bars)-1].Close
	}
	return EvaluateCriteria(m.cfg.Criteria, p, price, bars, ref), true
}

type decision struct {
	id      string
	reasons []string
}

// lastPrices fetches the latest traded prices in one batch. Failures fall back
// to the last bar close.
func (m *ConfirmationManager) lastPrices(ctx context.Context, checks []models.PendingSignal) map[string]float64 {
	symbols := make([]string, 0, len(checks))
	for _, p := range checks {
		symbols = append(symbols, p.Symbol)
	}
	stats, err := m.md.Get24hStats(ctx, symbols)
	if err != nil {
		m.log.Warn("24h stats unavailable for confirmation", applogger.Error(err))
		return nil
	}
	out := make(map[string]float64, len(stats))
	for sym, st := range stats {
		out[sym] = st.LastPrice
	}
	return out
}

// persistPending writes the updated attempt counters of signals still pending.
func (m *ConfirmationManager) persistPending(ctx context.Context) {
	for _, p := range m.GetPending() {
		if err := m.store.SaveCandidate(ctx, p); err != nil {
			m.log.Warn("persist pending signal failed", applogger.String("id", p.ID), applogger.Error(err))
			m.recordError("store")
			return
		}
	}
}

// finalize moves a pending signal to its terminal state. It returns false when
// the signal is no longer pending.
func (m *ConfirmationManager) finalize(ctx context.Context, id string, status models.Status, reasons []string, now time.Time) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(id)
	snapshot := *p
	reasons = append([]string(nil), reasons...)

	var (
		conf models.ConfirmedSignal
		rej  models.RejectedSignal
	)
	if status == models.StatusConfirmed {
		conf = models.ConfirmedSignal{Signal: snapshot, Reasons: reasons, DecidedAt: now}
		m.confirmed = appendBounded(m.confirmed, conf, m.cfg.HistoryLimit)
		m.confirmedCount++
		m.confirmedAttempts += snapshot.Attempts
		m.daily[snapshot.Key()] = struct{}{}
	} else {
		rej = models.RejectedSignal{Signal: snapshot, Status: status, Reasons: reasons, DecidedAt: now}
		m.rejected = appendBounded(m.rejected, rej, m.cfg.HistoryLimit)
		if status == models.StatusExpired {
			m.expiredCount++
		} else {
			m.rejectedCount++
		}
	}
	size := len(m.pending)
	m.mu.Unlock()

	fields := []applogger.Field{
		applogger.String("id", id),
		applogger.String("pair", snapshot.Key().String()),
		applogger.String("status", string(status)),
		applogger.Strings("reasons", reasons),
		applogger.Int("attempts", snapshot.Attempts),
	}
	if status == models.StatusConfirmed {
		m.log.Info("signal confirmed", fields...)
		if err := m.store.SaveConfirmed(ctx, conf); err != nil {
			m.log.Warn("persist confirmed signal failed", applogger.String("id", id), applogger.Error(err))
			m.recordError("store")
		}
		m.notify(ctx, conf)
	} else {
		m.log.Info("signal closed", fields...)
		if err := m.store.SaveRejected(ctx, rej); err != nil {
			m.log.Warn("persist rejected signal failed", applogger.String("id", id), applogger.Error(err))
			m.recordError("store")
		}
	}
	if m.metrics != nil {
		m.metrics.RecordDecision(status)
		m.metrics.SetPending(size)
	}
	return true
}

func (m *ConfirmationManager) notify(ctx context.Context, s models.ConfirmedSignal) {
	if m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(nctx, s); err != nil {
		m.log.Warn("notification failed", applogger.String("id", s.Signal.ID), applogger.Error(err))
		m.recordError("notify")
	}
}

func (m *ConfirmationManager) removeLocked(id string) {
	p := m.pending[id]
	delete(m.pending, id)
	if m.byKey[p.Key()] == id {
		delete(m.byKey, p.Key())
	}
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func appendBounded[T any](xs []T, v T, limit int) []T {
	xs = append(xs, v)
	if len(xs) > limit {
		xs = append(xs[:0:0], xs[len(xs)-limit:]...)
	}
	return xs
}

// ManualConfirm confirms a pending signal on operator request.
func (m *ConfirmationManager) ManualConfirm(ctx context.Context, id string) bool {
	return m.finalize(ctx, id, models.StatusConfirmed, []string{ReasonManualConfirmation}, m.now())
}

// ManualReject rejects a pending signal on operator request.
func (m *ConfirmationManager) ManualReject(ctx context.Context, id, reason string) bool {
	r := ReasonManualRejection
	if reason != "" {
		r += ": " + reason
	}
	return m.finalize(ctx, id, models.StatusRejected, []string{r}, m.now())
}

// ResetDaily clears the set of pairs confirmed today. Pending signals are untouched.
func (m *ConfirmationManager) ResetDaily(now time.Time) {
	m.mu.Lock()
	prevCount, prevDate := m.resetDailyLocked(now)
	m.mu.Unlock()
	m.logReset(prevDate, prevCount, now)
}

// ResetIfNewDay resets the daily set once per calendar day in the configured location.
func (m *ConfirmationManager) ResetIfNewDay(now time.Time) bool {
	m.mu.Lock()
	if util.DayKey(now, m.cfg.Location) == m.lastResetDate {
		m.mu.Unlock()
		return false
	}
	prevCount, prevDate := m.resetDailyLocked(now)
	m.mu.Unlock()
	m.logReset(prevDate, prevCount, now)
	return true
}

func (m *ConfirmationManager) resetDailyLocked(now time.Time) (int, string) {
	prevCount, prevDate := len(m.daily), m.lastResetDate
	m.daily = make(map[models.SignalKey]struct{})
	m.lastResetDate = util.DayKey(now, m.cfg.Location)
	return prevCount, prevDate
}

func (m *ConfirmationManager) logReset(prevDate string, prevCount int, now time.Time) {
	m.log.Info("daily confirmed set reset",
		applogger.String("previous_date", prevDate),
		applogger.Int("previous_count", prevCount),
		applogger.String("date", util.DayKey(now, m.cfg.Location)))
}

// Restore reloads decision history and pending signals from the store.
// Pairs confirmed today are blocked again; pending signals already past
// their deadline are closed as expired and duplicate pairs are dropped.
func (m *ConfirmationManager) Restore(ctx context.Context) (int, error) {
	now := m.now()
	m.restoreHistory(ctx, now)

	list, err := m.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	var stale []string
	m.mu.Lock()
	for i := range list {
		p := list[i]
		if _, ok := m.pending[p.ID]; ok {
			continue
		}
		if _, ok := m.byKey[p.Key()]; ok {
			continue
		}
		if _, ok := m.daily[p.Key()]; ok {
			continue
		}
		m.insertLocked(&p)
		if now.After(p.ExpiresAt) {
			stale = append(stale, p.ID)
			continue
		}
		restored++
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.finalize(ctx, id, models.StatusExpired, []string{ReasonTimeoutExpired}, now)
	}
	if m.metrics != nil {
		m.metrics.SetPending(m.pendingCount())
	}
	m.log.Info("pending signals restored", applogger.Int("restored", restored), applogger.Int("expired", len(stale)))
	return restored, nil
}

// restoreHistory loads the last HistoryLimit decisions once, on a manager
// that has not decided anything yet. Store lists are newest first.
func (m *ConfirmationManager) restoreHistory(ctx context.Context, now time.Time) {
	m.mu.Lock()
	fresh := len(m.confirmed) == 0 && len(m.rejected) == 0
	m.mu.Unlock()
	if !fresh {
		return
	}

	confirmed, err := m.store.ListConfirmed(ctx, m.cfg.HistoryLimit)
	if err != nil {
		m.log.Warn("restore confirmed history failed", applogger.Error(err))
		m.recordError("store")
	}
	rejected, err := m.store.ListRejected(ctx, m.cfg.HistoryLimit)
	if err != nil {
		m.log.Warn("restore rejected history failed", applogger.Error(err))
		m.recordError("store")
	}

	today := util.DayKey(now, m.cfg.Location)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(confirmed) - 1; i >= 0; i-- {
		c := confirmed[i]
		m.confirmed = appendBounded(m.confirmed, c, m.cfg.HistoryLimit)
		m.confirmedCount++
		m.confirmedAttempts += c.Signal.Attempts
		if util.DayKey(c.DecidedAt, m.cfg.Location) == today {
			m.daily[c.Signal.Key()] = struct{}{}
		}
	}
	for i := len(rejected) - 1; i >= 0; i-- {
		r := rejected[i]
		m.rejected = appendBounded(m.rejected, r, m.cfg.HistoryLimit)
		if r.Status == models.StatusExpired {
			m.expiredCount++
		} else {
			m.rejectedCount++
		}
	}
	m.lastResetDate = today
	m.log.Info("decision history restored",
		applogger.Int("confirmed", len(confirmed)),
		applogger.Int("rejected", len(rejected)),
		applogger.Int("daily", len(m.daily)))
}

func (m *ConfirmationManager) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// GetPending returns the pending signals in admission order.
func (m *ConfirmationManager) GetPending() []models.PendingSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PendingSignal, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.pending[id])
	}
	return out
}

// GetConfirmed returns up to limit confirmed signals, newest first.
func (m *ConfirmationManager) GetConfirmed(limit int) []models.ConfirmedSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.confirmed, limit)
}

// GetRejected returns up to limit rejected or expired signals, newest first.
func (m *ConfirmationManager) GetRejected(limit int) []models.RejectedSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.rejected, limit)
}

func newestFirst[T any](xs []T, limit int) []T {
	if limit <= 0 || limit > len(xs) {
		limit = len(xs)
	}
	out := make([]T, 0, limit)
	for i := len(xs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, xs[i])
	}
	return out
}

func (m *ConfirmationManager) GetMetrics() models.ConfirmationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	met := models.ConfirmationMetrics{
		Pending:        len(m.pending),
		Confirmed:      m.confirmedCount,
		Rejected:       m.rejectedCount,
		Expired:        m.expiredCount,
		DailyConfirmed: len(m.daily),
		Active:         m.active.Load(),
	}
	if closed := m.confirmedCount + m.rejectedCount + m.expiredCount; closed > 0 {
		met.ConfirmationRate = float64(m.confirmedCount) / float64(closed) * 100
	}
	if m.confirmedCount > 0 {
		met.AvgConfirmTimeMinutes = float64(m.confirmedAttempts) * m.cfg.CheckInterval.Seconds() / float64(m.confirmedCount) / 60
	}
	return met
}

func (m *ConfirmationManager) GetDailyConfirmedStatus() models.DailyConfirmedStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairs := make([]models.SignalKey, 0, len(m.daily))
	for k := range m.daily {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return models.DailyConfirmedStatus{Count: len(pairs), Pairs: pairs, LastResetDate: m.lastResetDate}
}

func (m *ConfirmationManager) recordError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordError(kind)
	}
}
