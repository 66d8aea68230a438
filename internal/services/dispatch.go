package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/receipt"
)

var (
	ErrInvalidOrder = errors.New("invalid order: missing id")
	ErrPrintTimeout = errors.New("print timeout")
	ErrJobCancelled = errors.New("job cancelled")
)

// DefaultPrintTimeout bounds one physical print.
const DefaultPrintTimeout = 5 * time.Second

// SettingsStore is the persistent key/value configuration shared with
// the rest of the agent.
type SettingsStore interface {
	Get(key string) string
	Set(key, value string) error
}

// Job is one queued order. Done is closed exactly once, when the job has
// printed, failed or been cleared from the queue.
type Job struct {
	RequestID  string
	Order      model.Order
	EnqueuedAt time.Time

	done   chan struct{}
	once   sync.Once
	result model.PrintResult
	err    error
}

func newJob(order model.Order, requestID string) *Job {
	return &Job{
		RequestID:  requestID,
		Order:      order,
		EnqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (j *Job) Result() (model.PrintResult, error) {
	return j.result, j.err
}

// Wait blocks until the job settles or ctx is done. Abandoning the wait
// does not remove the job from the queue.
func (j *Job) Wait(ctx context.Context) (model.PrintResult, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return model.PrintResult{}, ctx.Err()
	}
}

func (j *Job) settle(result model.PrintResult, err error) bool {
	settled := false
	j.once.Do(func() {
		j.result = result
		j.err = err
		close(j.done)
		settled = true
	})
	return settled
}

// EngineOptions configures an Engine. Renderer and Open are required.
type EngineOptions struct {
	Renderer receipt.Renderer
	Open     OpenFunc
	Settings SettingsStore
	Scanner  *Scanner
	Notifier Notifier
	Metrics  *Metrics
	Logger   *slog.Logger

	PrintTimeout time.Duration
	// RecheckAfterTimeout probes the device after a print timeout and
	// keeps it connected when it still answers.
	RecheckAfterTimeout bool
}

// Engine is the print dispatch engine. It owns the job queue and the
// device connection: jobs are started strictly in submission order and
// at most one job is executing at any time.
type Engine struct {
	renderer     receipt.Renderer
	open         OpenFunc
	settings     SettingsStore
	scanner      *Scanner
	notifier     Notifier
	metrics      *Metrics
	logger       *slog.Logger
	printTimeout time.Duration
	recheck      bool
	// recheckGrace is how long a timed-out write may take to return
	// before a recheck gives up on the device.
	recheckGrace time.Duration

	mu         sync.Mutex
	queue      []*Job
	printing   bool
	device     Device
	lastResult *model.PrintResult
	available  []model.CandidateDevice
}

func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		renderer:     opts.Renderer,
		open:         opts.Open,
		settings:     opts.Settings,
		scanner:      opts.Scanner,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		printTimeout: opts.PrintTimeout,
		recheck:      opts.RecheckAfterTimeout,
		recheckGrace: time.Second,
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.printTimeout <= 0 {
		e.printTimeout = DefaultPrintTimeout
	}
	return e
}

// --- Queue ---

// Enqueue appends order to the queue and returns its completion handle.
// An order without id is rejected before it is queued. An empty
// requestID is replaced by a generated one.
func (e *Engine) Enqueue(order model.Order, requestID string) (*Job, error) {
	order.Normalize()
	if order.ID == "" {
		e.logger.Warn("rejected order without id", "request_id", requestID)
		return nil, ErrInvalidOrder
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	job := newJob(order, requestID)

	e.mu.Lock()
	e.queue = append(e.queue, job)
	depth := len(e.queue)
	start := !e.printing
	if start {
		e.printing = true
	}
	e.mu.Unlock()

	e.metrics.setQueueLength(depth)
	e.logger.Info("order queued", "order_id", order.ID, "request_id", requestID, "queue_length", depth)
	if start {
		go e.processQueue()
	}
	return job, nil
}

// Submit queues order and waits for its result.
func (e *Engine) Submit(ctx context.Context, order model.Order) (model.PrintResult, error) {
	job, err := e.Enqueue(order, "")
	if err != nil {
		return model.PrintResult{}, err
	}
	return job.Wait(ctx)
}

// processQueue is the single worker. It exits when the queue is empty;
// the next Enqueue starts a new one.
func (e *Engine) processQueue() {
	e.logger.Debug("print worker started")
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.printing = false
			e.mu.Unlock()
			e.logger.Debug("print worker idle")
			return
		}
		job := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		depth := len(e.queue)
		e.mu.Unlock()

		e.metrics.setQueueLength(depth)
		e.runJob(job)
	}
}

func (e *Engine) runJob(job *Job) {
	logger := e.logger.With("order_id", job.Order.ID, "request_id", job.RequestID)
	logger.Info("processing order")
	started := time.Now()

	result, err := e.executeJob(context.Background(), job.Order)

	outcome := "printed"
	switch {
	case errors.Is(err, ErrPrintTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "failed"
	case result.Simulated:
		outcome = "simulated"
	}
	e.metrics.observeJob(outcome, time.Since(started).Seconds())

	if err != nil {
		logger.Error("order failed", "error", err)
		e.notifier.Notify(EventError, fmt.Sprintf("Order #%s failed: %v", job.Order.ID, err))
	} else {
		logger.Info("order finished", "simulated", result.Simulated)
		e.notifier.Notify(EventPrinted, fmt.Sprintf("Order #%s printed (simulated=%t)", job.Order.ID, result.Simulated))
	}
	job.settle(result, err)
}

// executeJob prints one order. Without a device the result is a
// simulated success. With a device the physical write is bounded by the
// print timeout; a timeout disconnects the device so later jobs are
// simulated instead of stalling.
func (e *Engine) executeJob(ctx context.Context, order model.Order) (model.PrintResult, error) {
	e.mu.Lock()
	dev := e.device
	e.mu.Unlock()

	if dev == nil {
		e.logger.Warn("printer not connected, simulating order", "order_id", order.ID)
		result := model.PrintResult{
			Success:   true,
			Simulated: true,
			OrderID:   order.ID,
			PrintedAt: time.Now(),
		}
		e.setLastResult(result)
		return result, nil
	}

	e.notifier.Notify(EventPrinting, fmt.Sprintf("Printing order #%s", order.ID))
	identifier := dev.Identifier()
	fail := func(err error) (model.PrintResult, error) {
		e.setLastResult(model.PrintResult{
			OrderID:   order.ID,
			PrintedAt: time.Now(),
			Device:    &identifier,
			Error:     err.Error(),
		})
		return model.PrintResult{}, err
	}

	payload, err := e.renderer.Render(order)
	if err != nil {
		return fail(fmt.Errorf("rendering order %s: %w", order.ID, err))
	}

	execCtx, cancel := context.WithTimeout(ctx, e.printTimeout)
	defer cancel()

	// Buffered so a device that outlives the timeout can still finish.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("device panic: %v", r)
			}
		}()
		done <- dev.Execute(execCtx, payload)
	}()

	select {
	case err = <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			e.handleTimeout(dev, nil)
			return fail(fmt.Errorf("printing order %s on %s: %w", order.ID, identifier, ErrPrintTimeout))
		}
	case <-execCtx.Done():
		e.handleTimeout(dev, done)
		return fail(fmt.Errorf("printing order %s on %s: %w after %s", order.ID, identifier, ErrPrintTimeout, e.printTimeout))
	}
	if err != nil {
		return fail(fmt.Errorf("printing order %s on %s: %w", order.ID, identifier, err))
	}

	result := model.PrintResult{
		Success:   true,
		OrderID:   order.ID,
		PrintedAt: time.Now(),
		Device:    &identifier,
	}
	e.setLastResult(result)
	return result, nil
}

// handleTimeout treats the device as wedged. running is the result of
// the timed-out Execute, or nil when it has already returned. With recheck
// enabled the device stays connected only if that Execute returns within
// the grace period and the device still accepts a probe, so the next job
// never writes to it concurrently.
func (e *Engine) handleTimeout(dev Device, running <-chan error) {
	if e.recheck {
		if !e.writeReturned(running) {
			e.logger.Warn("timed-out write still running", "device", dev.Identifier())
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			reachable := dev.IsReachable(ctx)
			cancel()
			if reachable {
				e.logger.Warn("print timed out but device still answers, keeping connection", "device", dev.Identifier())
				return
			}
		}
	}

	e.mu.Lock()
	if e.device != dev {
		// Someone already reconnected; leave the new device alone.
		e.mu.Unlock()
		return
	}
	e.device = nil
	e.mu.Unlock()

	dev.Close()
	e.logger.Warn("printer disconnected after timeout", "device", dev.Identifier())
	e.notifier.Notify(EventDisconnected, fmt.Sprintf("Printer %s disconnected after timeout", dev.Identifier()))
}

func (e *Engine) writeReturned(running <-chan error) bool {
	if running == nil {
		return true
	}
	timer := time.NewTimer(e.recheckGrace)
	defer timer.Stop()
	select {
	case <-running:
		return true
	case <-timer.C:
		return false
	}
}

func (e *Engine) setLastResult(result model.PrintResult) {
	e.mu.Lock()
	e.lastResult = &result
	e.mu.Unlock()
}

// ClearQueue drops every job that has not started yet. Each dropped job
// settles with ErrJobCancelled so no caller waits forever. The job being
// printed, if any, is not affected.
func (e *Engine) ClearQueue() int {
	e.mu.Lock()
	cleared := e.queue
	e.queue = nil
	e.mu.Unlock()

	e.metrics.setQueueLength(0)
	for _, job := range cleared {
		if job.settle(model.PrintResult{}, ErrJobCancelled) {
			e.metrics.observeJob("cancelled", time.Since(job.EnqueuedAt).Seconds())
			e.notifier.Notify(EventLog, fmt.Sprintf("Order #%s removed from queue", job.Order.ID))
		}
	}
	e.logger.Info("queue cleared", "cleared", len(cleared))
	return len(cleared)
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Connected   bool                    `json:"connected"`
	Device      string                  `json:"printerIP,omitempty"`
	QueueLength int                     `json:"queueLength"`
	IsPrinting  bool                    `json:"isPrinting"`
	LastResult  *model.PrintResult      `json:"lastResult"`
	Available   []model.CandidateDevice `json:"availablePrinters"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		Connected:   e.device != nil,
		QueueLength: len(e.queue),
		IsPrinting:  e.printing,
		Available:   append([]model.CandidateDevice(nil), e.available...),
	}
	if e.device != nil {
		status.Device = e.device.Identifier()
	}
	if e.lastResult != nil {
		last := *e.lastResult
		status.LastResult = &last
	}
	return status
}

// TestPrintResult reports a diagnostic print.
type TestPrintResult struct {
	Success   bool   `json:"success"`
	TestID    string `json:"testId,omitempty"`
	Device    string `json:"printerIP,omitempty"`
	Simulated bool   `json:"simulated"`
	Error     string `json:"error,omitempty"`
}

// TestPrint queues a fixed sample order and waits for it. It goes through
// the same queue and execution path as real orders.
func (e *Engine) TestPrint(ctx context.Context) TestPrintResult {
	order := SampleOrder(time.Now())
	e.logger.Info("starting test print", "order_id", order.ID)

	result, err := e.Submit(ctx, order)
	if err != nil {
		e.logger.Error("test print failed", "error", err)
		return TestPrintResult{Error: err.Error()}
	}
	out := TestPrintResult{
		Success:   true,
		TestID:    order.ID,
		Simulated: result.Simulated,
	}
	if result.Device != nil {
		out.Device = *result.Device
	}
	return out
}

// SampleOrder is the order printed by TestPrint.
func SampleOrder(now time.Time) model.Order {
	return model.Order{
		ID:            fmt.Sprintf("TEST-%d", now.UnixMilli()),
		CustomerName:  "Teste Impressora",
		CustomerPhone: "11 99999-9999",
		Items: []model.Item{
			{Quantity: 1, Name: "Pizza de Calabresa", Price: decimal.NewFromInt(45), Notes: "Sem cebola"},
			{Quantity: 2, Name: "Coca-Cola 2L", Price: decimal.NewFromInt(12)},
		},
		Subtotal:        decimal.NewFromInt(69),
		DeliveryFee:     decimal.NewFromInt(5),
		Total:           decimal.NewFromInt(74),
		PaymentMethod:   "Cartão de Crédito",
		DeliveryAddress: "Rua dos Devs, 128, Bairro Binário",
	}
}

// --- Connection ---

// Connect opens the device named by identifier and makes it current if
// it answers. The identifier is saved so the next start reconnects to it.
// Connect does not retry.
func (e *Engine) Connect(ctx context.Context, identifier string) bool {
	logger := e.logger.With("device", identifier)
	if e.open == nil {
		logger.Error("no device opener configured")
		return false
	}

	dev, err := e.open(ctx, identifier)
	if err != nil {
		logger.Warn("failed to open printer", "error", err)
		return false
	}
	if !dev.IsReachable(ctx) {
		dev.Close()
		logger.Warn("printer did not answer")
		return false
	}

	e.mu.Lock()
	previous := e.device
	e.device = dev
	e.mu.Unlock()
	if previous != nil && previous != dev {
		previous.Close()
	}

	if e.settings != nil {
		if err := e.settings.Set(model.SettingPrinter, dev.Identifier()); err != nil {
			logger.Warn("failed to save selected printer", "error", err)
		}
	}
	logger.Info("printer connected")
	e.notifier.Notify(EventConnected, fmt.Sprintf("Printer connected: %s", dev.Identifier()))
	return true
}

// Disconnect drops the current device. Later jobs are simulated.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	dev := e.device
	e.device = nil
	e.mu.Unlock()

	if dev == nil {
		return
	}
	dev.Close()
	e.logger.Info("printer disconnected", "device", dev.Identifier())
	e.notifier.Notify(EventDisconnected, fmt.Sprintf("Printer %s disconnected", dev.Identifier()))
}

// AutoDetect looks for a printer from the cheapest source to the most
// expensive: the saved identifier, the OS spooler, the well-known local
// ports and finally a sweep of the local subnet. The sweep only connects
// on its own when it finds exactly one printer. It stops at the first
// device that connects.
func (e *Engine) AutoDetect(ctx context.Context) bool {
	if e.settings != nil {
		if saved := e.settings.Get(model.SettingPrinter); saved != "" {
			e.logger.Info("trying saved printer", "device", saved)
			if e.Connect(ctx, saved) {
				return true
			}
		}
	}
	if e.scanner == nil {
		return false
	}

	candidate, err := e.scanner.ScanSpooler(ctx)
	if err != nil {
		e.logger.Debug("spooler discovery unavailable", "error", err)
	}
	if candidate != nil && e.Connect(ctx, candidate.Identifier) {
		return true
	}

	if candidate := e.scanner.ScanPorts(ctx); candidate != nil && e.Connect(ctx, candidate.Identifier) {
		return true
	}

	found, err := e.Scan(ctx)
	if err != nil {
		e.logger.Warn("subnet scan failed", "error", err)
		return false
	}
	if len(found) == 1 {
		return e.Connect(ctx, found[0].Identifier)
	}
	if len(found) > 1 {
		e.logger.Warn("several printers found, select one", "found", len(found))
	}
	return false
}

// Scan sweeps the local subnet and remembers the result for Status.
func (e *Engine) Scan(ctx context.Context) ([]model.CandidateDevice, error) {
	if e.scanner == nil {
		return nil, errors.New("no scanner configured")
	}
	found, err := e.scanner.ScanSubnet(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.available = found
	e.mu.Unlock()
	return found, nil
}
