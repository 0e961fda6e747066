// Package sync delivers the durable sync queue to the server.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"unicode/utf8"

	"github.com/iudanet/coachsync/internal/client/api"
	"github.com/iudanet/coachsync/internal/client/state"
	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/metrics"
	"github.com/iudanet/coachsync/internal/models"
)

// ErrPassInProgress is returned by ForceFlushNow while another pass runs.
var ErrPassInProgress = errors.New("sync pass already in progress")

// maxErrorLen ограничивает длину LastError
const maxErrorLen = 512

// Transport executes HTTP-shaped requests.
type Transport interface {
	Do(ctx context.Context, req *api.Request) (*api.Response, error)
}

// CredentialProvider returns the current bearer token. ok is false when no
// usable credential is available.
type CredentialProvider interface {
	CurrentCredential(ctx context.Context) (token string, ok bool)
}

// Store is the persistence the processor needs.
type Store interface {
	storage.QueueStorage
	storage.Transactor
	storage.MetadataStorage
}

// Config configures a Processor.
type Config struct {
	Policy     RetryPolicy
	Backoff    Backoff
	MaxRetries int
}

// DefaultConfig returns the default retry budget, backoff and policy.
func DefaultConfig() Config {
	return Config{
		Policy:     DefaultRetryPolicy(),
		Backoff:    DefaultBackoff(),
		MaxRetries: models.DefaultMaxRetries,
	}
}

// SkipReason explains why a pass delivered nothing.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipOffline      SkipReason = "offline"
	SkipNoCredential SkipReason = "no credential"
	SkipUnauthorized SkipReason = "credential rejected"
	SkipWentOffline  SkipReason = "went offline"
	SkipShuttingDown SkipReason = "shutting down"
)

// PassResult summarizes one processor pass.
type PassResult struct {
	Skipped    SkipReason
	Attempted  int
	Succeeded  int
	Transient  int
	Permanent  int
	Reconciled int
}

// Processor is the single-flight retry engine.
type Processor struct {
	store      Store
	transport  Transport
	creds      CredentialProvider
	state      *state.SyncState
	clock      clock.Clock
	metrics    metrics.SyncMetrics
	reconciler *Reconciler
	logger     *slog.Logger
	wake       chan struct{}
	cfg        Config
}

// NewProcessor creates a processor. Start the worker loop with Run.
func NewProcessor(
	store Store,
	transport Transport,
	creds CredentialProvider,
	st *state.SyncState,
	clk clock.Clock,
	cfg Config,
	m metrics.SyncMetrics,
	logger *slog.Logger,
) *Processor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if cfg.Backoff.Base <= 0 || cfg.Backoff.Max <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Policy.retryable == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Processor{
		store:      store,
		transport:  transport,
		creds:      creds,
		state:      st,
		clock:      clk,
		cfg:        cfg,
		metrics:    m,
		reconciler: NewReconciler(logger),
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// MaxRetries returns the configured retry budget.
func (p *Processor) MaxRetries() int {
	return p.cfg.MaxRetries
}

// TriggerSync asks the worker loop for a pass. It never blocks and is a no-op
// while a pass is running; the running pass re-checks for new work when it ends.
func (p *Processor) TriggerSync() {
	if p.state.IsSyncing() {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run is the background worker loop. It returns when ctx is cancelled; a pass
// in progress finishes its current network call first.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("sync processor started")
	defer p.logger.Info("sync processor stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			if _, err := p.runPass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
				p.logger.Error("sync pass failed", "error", err)
			}
		}
	}
}

// ForceFlushNow runs a pass synchronously.
func (p *Processor) ForceFlushNow(ctx context.Context) (PassResult, error) {
	return p.runPass(ctx)
}

// ListFailed returns the dead-lettered items.
func (p *Processor) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	items, err := p.store.DeadLetterItems(ctx, p.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return items, nil
}

// ResetFailed makes every dead-lettered item eligible again and triggers a pass.
func (p *Processor) ResetFailed(ctx context.Context) (int, error) {
	n, err := p.store.ResetDeadLetters(ctx, p.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}
	p.logger.Info("dead letters reset", "count", n)
	p.refreshCounts(ctx)
	if n > 0 {
		p.TriggerSync()
	}
	return n, nil
}

// HasDueItems reports whether any item is eligible now.
func (p *Processor) HasDueItems(ctx context.Context) (bool, error) {
	due, err := p.store.DueItems(ctx, p.clock.Now(), p.cfg.MaxRetries)
	if err != nil {
		return false, err
	}
	return len(due) > 0, nil
}

func (p *Processor) runPass(ctx context.Context) (PassResult, error) {
	if !p.state.TryBeginSync() {
		return PassResult{}, ErrPassInProgress
	}

	started := p.clock.Now()
	attempted := make(map[string]struct{})
	total := PassResult{}

	for {
		res, err := p.pass(ctx, attempted)
		total.add(res)
		if err != nil {
			p.state.EndSync()
			return total, err
		}
		if res.Skipped != SkipNone || res.Attempted == 0 {
			total.Skipped = res.Skipped
			break
		}
		// элементы, поставленные во время прохода, обрабатываются сразу
		more, err := p.hasUnattempted(ctx, attempted)
		if err != nil || !more {
			break
		}
	}

	// учет после прохода не должен прерываться отменой ctx
	bg := context.WithoutCancel(ctx)
	p.refreshCounts(bg)
	p.state.EndSync()

	p.metrics.RecordPass(bg, p.clock.Now().Sub(started), total.Attempted)
	if total.Attempted > 0 {
		p.logger.Info("sync pass finished",
			"attempted", total.Attempted,
			"succeeded", total.Succeeded,
			"transient", total.Transient,
			"permanent", total.Permanent,
			"reconciled", total.Reconciled,
		)
	}

	// Триггер, пришедший между последней проверкой и EndSync, был проигнорирован
	if total.Skipped == SkipNone {
		if more, err := p.hasUnattempted(ctx, attempted); err == nil && more {
			p.TriggerSync()
		}
	}
	return total, nil
}

func (r *PassResult) add(o PassResult) {
	r.Attempted += o.Attempted
	r.Succeeded += o.Succeeded
	r.Transient += o.Transient
	r.Permanent += o.Permanent
	r.Reconciled += o.Reconciled
}

func (p *Processor) hasUnattempted(ctx context.Context, attempted map[string]struct{}) (bool, error) {
	due, err := p.store.DueItems(ctx, p.clock.Now(), p.cfg.MaxRetries)
	if err != nil {
		return false, err
	}
	for _, item := range due {
		if _, ok := attempted[item.ID]; !ok {
			return true, nil
		}
	}
	return false, nil
}

// pass delivers every currently due item not yet attempted, oldest first.
func (p *Processor) pass(ctx context.Context, attempted map[string]struct{}) (PassResult, error) {
	var res PassResult

	if !p.state.IsOnline() {
		res.Skipped = SkipOffline
		return res, nil
	}
	if _, ok := p.creds.CurrentCredential(ctx); !ok {
		res.Skipped = SkipNoCredential
		p.logger.Debug("sync pass skipped: no credential")
		return res, nil
	}

	due, err := p.store.DueItems(ctx, p.clock.Now(), p.cfg.MaxRetries)
	if err != nil {
		return res, fmt.Errorf("failed to load due items: %w", err)
	}

	for _, item := range due {
		if _, done := attempted[item.ID]; done {
			continue
		}
		if ctx.Err() != nil {
			res.Skipped = SkipShuttingDown
			return res, nil
		}
		if !p.state.IsOnline() {
			res.Skipped = SkipWentOffline
			return res, nil
		}
		token, ok := p.creds.CurrentCredential(ctx)
		if !ok {
			res.Skipped = SkipNoCredential
			return res, nil
		}

		attempted[item.ID] = struct{}{}
		outcome, reconciled := p.deliver(context.WithoutCancel(ctx), item, token)
		p.metrics.RecordDelivery(ctx, outcome.String())

		switch outcome {
		case OutcomeUnauthorized:
			res.Skipped = SkipUnauthorized
			return res, nil
		case OutcomeSuccess, OutcomeIdempotentSuccess:
			res.Attempted++
			res.Succeeded++
			if reconciled {
				res.Reconciled++
			}
		case OutcomePermanent:
			res.Attempted++
			res.Permanent++
		case OutcomeTransient:
			res.Attempted++
			res.Transient++
		}
	}

	if res.Skipped == SkipNone {
		p.markSynced(context.WithoutCancel(ctx))
	}
	return res, nil
}

// deliver executes one item and records its outcome. Failures are recorded on
// the item and never propagate.
func (p *Processor) deliver(ctx context.Context, item *models.QueueItem, token string) (Outcome, bool) {
	headers := make(map[string]string, len(item.Headers)+2)
	maps.Copy(headers, item.Headers)
	headers[models.CorrelationHeader] = item.CorrelationID
	headers["Authorization"] = "Bearer " + token

	log := p.logger.With(
		"item_id", item.ID,
		"correlation_id", item.CorrelationID,
		"method", item.Method,
		"url", item.URL,
	)

	resp, err := p.transport.Do(ctx, &api.Request{
		Method:  item.Method,
		URL:     item.URL,
		Headers: headers,
		Body:    item.Body,
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	outcome := p.cfg.Policy.Classify(status, err)

	switch outcome {
	case OutcomeSuccess:
		reconciled, ferr := p.finalize(ctx, item, resp.Body)
		if ferr != nil {
			log.Error("failed to finalize delivered item", "error", ferr)
		}
		log.Debug("item delivered", "status", status)
		return outcome, reconciled

	case OutcomeIdempotentSuccess:
		// сервер может вернуть тело первой доставки вместе с 409
		reconciled, ferr := p.finalize(ctx, item, resp.Body)
		if ferr != nil {
			log.Error("failed to finalize delivered item", "error", ferr)
		}
		log.Info("item already applied on server", "status", status)
		return outcome, reconciled

	case OutcomeUnauthorized:
		log.Warn("credential rejected by server, pass stopped", "status", status)
		return outcome, false

	case OutcomePermanent:
		lastErr := describe(status, resp, err)
		if ferr := p.recordFailure(ctx, item.ID, lastErr, true); ferr != nil {
			log.Error("failed to record permanent failure", "error", ferr)
		}
		log.Warn("item rejected permanently", "status", status, "error", lastErr)
		return outcome, false

	default:
		lastErr := describe(status, resp, err)
		if ferr := p.recordFailure(ctx, item.ID, lastErr, false); ferr != nil {
			log.Error("failed to record transient failure", "error", ferr)
		}
		log.Warn("item delivery failed", "status", status, "error", lastErr, "retry_count", item.RetryCount+1)
		return outcome, false
	}
}

// finalize removes a delivered item, promoting the local identifier first
// when a creation returned a different server identifier.
func (p *Processor) finalize(ctx context.Context, item *models.QueueItem, body []byte) (bool, error) {
	create, ok := item.Operation.(models.EntityCreate)
	if !ok {
		return false, p.remove(ctx, item.ID)
	}

	serverID := serverIDFromBody(body)
	if serverID == "" || serverID == create.LocalID {
		return false, p.remove(ctx, item.ID)
	}

	compensation, err := compensatingDelete(item, create, serverID, p.clock.Now())
	if err != nil {
		p.logger.Warn("cannot build compensating delete", "item_id", item.ID, "error", err)
		compensation = nil
	}

	var promotion *Promotion
	err = p.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		promotion, err = p.reconciler.Promote(tx, item, create, serverID, compensation)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to promote %s: %w", create.LocalID, err)
	}

	if promotion.Cancelled {
		if promotion.Compensated {
			p.logger.Info("creation cancelled in flight, compensating delete enqueued",
				"local_id", create.LocalID,
				"server_id", serverID,
			)
		} else {
			p.logger.Warn("creation cancelled in flight, server entity left in place",
				"local_id", create.LocalID,
				"server_id", serverID,
			)
		}
		return false, nil
	}

	p.metrics.RecordReconciliation(ctx, promotion.Rewritten)
	p.logger.Info("identifier promoted",
		"table", string(create.Table),
		"local_id", create.LocalID,
		"server_id", serverID,
		"rewritten", promotion.Rewritten,
		"dropped", promotion.Dropped,
		"reparented", promotion.Reparented,
	)
	return true, nil
}

func (p *Processor) remove(ctx context.Context, id string) error {
	err := p.store.DeleteItem(ctx, id)
	if errors.Is(err, storage.ErrItemNotFound) {
		// отменен во время запроса
		return nil
	}
	return err
}

// recordFailure increments the retry count and schedules the next attempt.
// Permanent failures exhaust the budget at once so the item is dead-lettered.
func (p *Processor) recordFailure(ctx context.Context, id, lastErr string, permanent bool) error {
	return p.store.Update(ctx, func(tx storage.Tx) error {
		item, err := tx.GetItem(id)
		if errors.Is(err, storage.ErrItemNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		item.LastError = lastErr
		if permanent {
			item.RetryCount = p.cfg.MaxRetries
			item.NextRetryAt = nil
			return tx.UpdateItem(item)
		}

		item.RetryCount++
		next := p.clock.Now().Add(p.cfg.Backoff.Delay(item.RetryCount))
		item.NextRetryAt = &next
		if item.IsDeadLettered(p.cfg.MaxRetries) {
			p.logger.Warn("item dead-lettered",
				"item_id", item.ID,
				"retry_count", item.RetryCount,
				"last_error", lastErr,
			)
		}
		return tx.UpdateItem(item)
	})
}

func (p *Processor) markSynced(ctx context.Context) {
	now := p.clock.Now()
	if err := p.store.SaveLastSyncAt(ctx, now); err != nil {
		p.logger.Warn("failed to save last sync time", "error", err)
	}
	p.state.SetLastSyncAt(now)
}

func (p *Processor) refreshCounts(ctx context.Context) {
	stats, err := p.store.CountItems(ctx, p.cfg.MaxRetries)
	if err != nil {
		p.logger.Warn("failed to count queue items", "error", err)
		return
	}
	p.state.SetCounts(stats)
}

func describe(status int, resp *api.Response, err error) string {
	var msg string
	if err != nil {
		msg = err.Error()
	} else {
		msg = fmt.Sprintf("status %d", status)
		if resp != nil && len(resp.Body) > 0 {
			msg += ": " + string(resp.Body)
		}
	}
	if len(msg) > maxErrorLen {
		// режем по границе руны
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
