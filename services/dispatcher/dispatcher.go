package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/upb/imagegen-gateway/repositories"
	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 5 * time.Minute

	// persistTimeout bounds store writes made after the caller's request
	// has already been answered
	persistTimeout = 5 * time.Second
)

// ProviderSpec is the static configuration of one pooled provider
type ProviderSpec struct {
	Name        string
	BaseURL     string
	Model       string
	Credentials []string

	// DailyLimit caps requests per credential per day; 0 means unlimited
	DailyLimit int
}

// Member pairs a provider's configuration with the adapter that speaks its
// wire protocol
type Member struct {
	Spec    ProviderSpec
	Adapter providers.Adapter
}

// provider is the mutable per-provider state. All fields except spec and
// adapter are guarded by Dispatcher.mu.
type provider struct {
	spec    ProviderSpec
	adapter providers.Adapter

	current   int
	active    bool
	usage     []int64
	exhausted []bool
	day       string
}

func newProvider(m Member, day string) *provider {
	n := len(m.Spec.Credentials)
	return &provider{
		spec:      m.Spec,
		adapter:   m.Adapter,
		active:    true,
		usage:     make([]int64, n),
		exhausted: make([]bool, n),
		day:       day,
	}
}

// usable reports whether credential i may take another request today.
// A credential that answered with a quota error is out until rollover or
// reset even if its counter says otherwise.
func (p *provider) usable(i int) bool {
	if p.exhausted[i] {
		return false
	}
	return p.spec.DailyLimit == 0 || p.usage[i] < int64(p.spec.DailyLimit)
}

// nextUsable walks the credentials from start, wrapping around, and returns
// the first usable one not in skip.
func (p *provider) nextUsable(start int, skip map[int]bool) (int, bool) {
	n := len(p.spec.Credentials)
	for step := 0; step < n; step++ {
		i := (start + step) % n
		if skip[i] {
			continue
		}
		if p.usable(i) {
			return i, true
		}
	}
	return 0, false
}

func (p *provider) hasUsable() bool {
	_, ok := p.nextUsable(0, nil)
	return ok
}

func (p *provider) rollover(day string) {
	for i := range p.usage {
		p.usage[i] = 0
		p.exhausted[i] = false
	}
	p.current = 0
	p.active = true
	p.day = day
}

func (p *provider) total() int64 {
	var sum int64
	for _, n := range p.usage {
		sum += n
	}
	return sum
}

// Dispatcher routes generation requests across a pool of providers, rotating
// credentials on failure and enforcing per-credential daily limits. Build one
// with New at startup and share it; it is safe for concurrent use.
type Dispatcher struct {
	mu        sync.Mutex
	providers []*provider
	byName    map[string]*provider
	rr        int

	store       repositories.UsageRepository
	clock       Clock
	loc         *time.Location
	maxAttempts int
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option customises a Dispatcher
type Option func(*Dispatcher)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithLocation sets the time zone whose calendar day bounds the quotas
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithMaxAttempts sets the outer retry budget
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithCallTimeout bounds every adapter call
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// New builds a dispatcher over members. Members without credentials are
// left out of the pool. Today's counters are loaded from store so quotas
// survive restarts.
func New(ctx context.Context, members []Member, store repositories.UsageRepository, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		byName:      make(map[string]*provider),
		store:       store,
		clock:       systemClock{},
		loc:         time.UTC,
		maxAttempts: defaultMaxAttempts,
		callTimeout: defaultCallTimeout,
		logger:      logger.With(zap.String("component", "dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}

	today := d.today()

	for _, m := range members {
		if len(m.Spec.Credentials) == 0 {
			d.logger.Debug("provider has no credentials, skipping", zap.String("provider", m.Spec.Name))
			continue
		}
		if m.Adapter == nil {
			return nil, fmt.Errorf("provider %s has no adapter", m.Spec.Name)
		}
		if _, exists := d.byName[m.Spec.Name]; exists {
			return nil, fmt.Errorf("duplicate provider %s", m.Spec.Name)
		}

		p := newProvider(m, today)
		if err := d.load(ctx, p, today); err != nil {
			return nil, err
		}

		d.providers = append(d.providers, p)
		d.byName[p.spec.Name] = p

		d.logger.Info("provider registered",
			zap.String("provider", p.spec.Name),
			zap.String("model", p.spec.Model),
			zap.Int("credentials", len(p.spec.Credentials)),
			zap.Int("daily_limit", p.spec.DailyLimit),
			zap.Int64("usage_today", p.total()))
	}

	return d, nil
}

// load restores today's counters for p and records today as its reset day
func (d *Dispatcher) load(ctx context.Context, p *provider, today string) error {
	counts, err := d.store.LoadDay(ctx, p.spec.Name, today)
	if err != nil {
		return fmt.Errorf("failed to load usage for %s: %w", p.spec.Name, err)
	}
	for index, count := range counts {
		if index >= 0 && index < len(p.usage) {
			p.usage[index] = count
		}
	}

	// the stored reset day never changes in-memory state; reading it first
	// only skips a redundant write when today is already recorded
	last, err := d.store.LastReset(ctx, p.spec.Name)
	if err != nil {
		return fmt.Errorf("failed to read reset day for %s: %w", p.spec.Name, err)
	}
	if last == today {
		return nil
	}
	if err := d.store.MarkReset(ctx, p.spec.Name, today); err != nil {
		return fmt.Errorf("failed to mark reset for %s: %w", p.spec.Name, err)
	}
	return nil
}

func (d *Dispatcher) today() string {
	return dayKey(d.clock.Now(), d.loc)
}

// Providers returns the pooled provider names in pool order
func (d *Dispatcher) Providers() []string {
	names := make([]string, len(d.providers))
	for i, p := range d.providers {
		names[i] = p.spec.Name
	}
	return names
}

// Generate sends prompt and images to the next available provider and
// returns the generated content, usually a data URI or image URL.
//
// Failures rotate to the provider's next credential without spending an
// attempt. When a provider runs out of credentials the attempt is spent and
// selection runs again. The only errors returned are ErrAllProvidersExhausted,
// *AllAttemptsFailedError and the caller's context error.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, images []providers.Image) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.ErrEmptyPrompt
	}

	req := &providers.GenerateRequest{Prompt: prompt, Images: images}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		p, cred, err := d.selectProvider(ctx)
		if err != nil {
			d.logger.Warn("no provider available", zap.Int("attempt", attempt))
			return "", err
		}

		tried := make(map[int]bool)
		for {
			tried[cred] = true

			d.logger.Debug("dispatching request",
				zap.String("provider", p.spec.Name),
				zap.Int("credential", cred),
				zap.Int("attempt", attempt))

			result, err := d.execute(ctx, p, cred, req)
			if err == nil {
				d.recordSuccess(ctx, p, cred)
				return result, nil
			}

			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}

			quota := isQuotaFailure(err)
			d.logFailure(p, cred, attempt, err, quota)

			next, ok := d.rotate(p, cred, tried, quota)
			if !ok {
				break
			}
			cred = next
		}

		d.advance()
	}

	d.logger.Error("all attempts failed",
		zap.Int("attempts", d.maxAttempts),
		zap.Error(lastErr))

	return "", &AllAttemptsFailedError{Attempts: d.maxAttempts, Err: lastErr}
}

func (d *Dispatcher) execute(ctx context.Context, p *provider, cred int, req *providers.GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	result, err := p.adapter.Execute(callCtx, p.spec.Credentials[cred], req)
	if err != nil {
		return "", err
	}
	if result == "" {
		return "", ErrEmptyResult
	}
	return result, nil
}

// selectProvider returns the provider under the round-robin pointer among
// the available ones, with its current credential. Evaluating availability
// rolls stale providers over to today.
func (d *Dispatcher) selectProvider(ctx context.Context) (*provider, int, error) {
	d.mu.Lock()

	today := d.today()
	var rolled []string
	var available []*provider

	for _, p := range d.providers {
		if p.day != today {
			p.rollover(today)
			rolled = append(rolled, p.spec.Name)
		}
		if d.checkAvailable(p) {
			available = append(available, p)
		}
	}

	var (
		chosen *provider
		cred   int
	)
	if len(available) > 0 {
		// the pointer indexes the available set, which shrinks as providers drop out
		d.rr %= len(available)
		chosen = available[d.rr]
		cred = chosen.current
	}

	d.mu.Unlock()

	d.persistRollover(ctx, rolled, today)

	if chosen == nil {
		return nil, 0, ErrAllProvidersExhausted
	}
	return chosen, cred, nil
}

// checkAvailable points p at a usable credential, deactivating p when it has
// none. Callers hold d.mu.
func (d *Dispatcher) checkAvailable(p *provider) bool {
	if !p.active {
		return false
	}
	if p.usable(p.current) {
		return true
	}

	next, ok := p.nextUsable(p.current+1, nil)
	if !ok {
		p.active = false
		d.logger.Info("provider deactivated: every credential is exhausted for today",
			zap.String("provider", p.spec.Name),
			zap.String("day", p.day))
		return false
	}

	p.current = next
	return true
}

// rotate moves p to its next usable credential not yet tried in this round.
// A quota failure takes the failing credential out for the day, and the
// provider with it once no credential is left.
func (d *Dispatcher) rotate(p *provider, failed int, tried map[int]bool, quota bool) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if quota {
		p.exhausted[failed] = true
	}

	if next, ok := p.nextUsable(failed+1, tried); ok {
		p.current = next
		d.logger.Info("rotating credential",
			zap.String("provider", p.spec.Name),
			zap.Int("from", failed),
			zap.Int("to", next))
		return next, true
	}

	if quota && p.active && !p.hasUsable() {
		p.active = false
		d.logger.Info("provider deactivated: every credential is exhausted for today",
			zap.String("provider", p.spec.Name),
			zap.String("day", p.day))
	}
	return 0, false
}

func (d *Dispatcher) advance() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rr++
}

// recordSuccess counts the request against cred and persists the counter
func (d *Dispatcher) recordSuccess(ctx context.Context, p *provider, cred int) {
	d.mu.Lock()
	today := d.today()
	var rolled []string
	if p.day != today {
		p.rollover(today)
		rolled = append(rolled, p.spec.Name)
	}
	p.usage[cred]++
	d.rr++
	d.mu.Unlock()

	d.persistRollover(ctx, rolled, today)

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	stored, err := d.store.Increment(storeCtx, p.spec.Name, cred, today)
	if err != nil {
		d.logger.Warn("failed to persist usage",
			zap.String("provider", p.spec.Name),
			zap.Int("credential", cred),
			zap.Error(err))
		return
	}

	// another instance sharing the store may have counted more
	d.mu.Lock()
	if p.day == today && stored > p.usage[cred] {
		p.usage[cred] = stored
	}
	d.mu.Unlock()
}

func (d *Dispatcher) persistRollover(ctx context.Context, names []string, day string) {
	if len(names) == 0 {
		return
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	for _, name := range names {
		d.logger.Info("daily usage rolled over", zap.String("provider", name), zap.String("day", day))
		if err := d.store.MarkReset(storeCtx, name, day); err != nil {
			d.logger.Warn("failed to persist rollover", zap.String("provider", name), zap.Error(err))
		}
	}
}

func (d *Dispatcher) logFailure(p *provider, cred, attempt int, err error, quota bool) {
	fields := []zap.Field{
		zap.String("provider", p.spec.Name),
		zap.Int("credential", cred),
		zap.String("credential_hint", maskCredential(p.spec.Credentials[cred])),
		zap.Int("attempt", attempt),
		zap.Error(err),
	}
	if quota {
		d.logger.Warn("provider quota exceeded", fields...)
		return
	}
	d.logger.Warn("provider request failed", fields...)
}

// Reset reactivates the named provider, zeroes today's counters for all its
// credentials and points it back at the first credential. It reports false
// for an unknown name.
func (d *Dispatcher) Reset(ctx context.Context, name string) (bool, error) {
	d.mu.Lock()
	p, ok := d.byName[name]
	if !ok {
		d.mu.Unlock()
		return false, nil
	}
	today := d.today()
	p.rollover(today)
	d.mu.Unlock()

	d.logger.Info("provider reset", zap.String("provider", name), zap.String("day", today))

	if err := d.store.ResetDay(ctx, name, today); err != nil {
		return true, fmt.Errorf("failed to reset stored usage for %s: %w", name, err)
	}
	return true, nil
}

// maskCredential keeps just enough of a secret to tell credentials apart in logs
func maskCredential(credential string) string {
	if len(credential) <= 8 {
		return "****"
	}
	return credential[:3] + "..." + credential[len(credential)-4:]
}
