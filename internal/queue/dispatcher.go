package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	logx "calendard/pkg/logx"
)

var (
	ErrStopped   = errors.New("dispatcher stopped")
	ErrQueueFull = errors.New("dispatcher queue full")
)

// DispatcherConfig controls the local delivery loop.
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	RetryMax       int           // redelivery attempts after the first failure
	RetryBase      time.Duration // first backoff delay
	RetryMaxDelay  time.Duration
	RequestTimeout time.Duration // per delivery attempt
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher is an in-process Queue implementation. It holds each submitted
// task until its schedule time, then POSTs the payload to the task's target
// URL from a worker pool, retrying failed deliveries with exponential
// backoff. Delivery is at-least-once: a slow or erroring callback endpoint
// sees the same task again.
//
// While a task is held, its name is reserved; re-submitting the same name is
// a no-op, which mirrors the identifier-uniqueness dedup of a hosted queue.
type Dispatcher struct {
	mu  sync.Mutex
	cfg DispatcherConfig
	log logx.Logger

	client *http.Client

	fire    chan TaskDescriptor
	pending map[string]*time.Timer
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		pending: map[string]*time.Timer{},
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		return
	}
	d.stopCh = make(chan struct{})
	d.fire = make(chan TaskDescriptor, d.cfg.QueueSize)

	stopCh := d.stopCh
	fire := d.fire

	d.wg.Add(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		go func() {
			defer d.wg.Done()
			d.worker(ctx, stopCh, fire)
		}()
	}
	d.log.Info("dispatcher started", logx.Int("workers", d.cfg.Workers))
}

// Stop cancels held timers and waits for in-flight deliveries. Tasks whose
// timers had not fired yet are dropped; durability across restarts is the
// hosted queue's job, not this local stand-in's.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopCh == nil {
		d.mu.Unlock()
		return
	}
	stopCh := d.stopCh
	d.stopCh = nil
	for name, t := range d.pending {
		t.Stop()
		delete(d.pending, name)
	}
	d.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	d.log.Info("dispatcher stopped")
}

// Submit reserves the task name and arms a timer for the schedule time.
func (d *Dispatcher) Submit(_ context.Context, task TaskDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh == nil {
		return ErrStopped
	}
	if _, exists := d.pending[task.Name]; exists {
		d.log.Debug("task already pending", logx.String("task", task.Name))
		return nil
	}

	delay := time.Until(task.ScheduleTime)
	if delay < 0 {
		delay = 0
	}
	d.pending[task.Name] = time.AfterFunc(delay, func() {
		d.enqueue(task)
	})
	d.log.Debug("task scheduled",
		logx.String("task", task.Name),
		logx.Time("at", task.ScheduleTime))
	return nil
}

func (d *Dispatcher) enqueue(task TaskDescriptor) {
	d.mu.Lock()
	fire := d.fire
	running := d.stopCh != nil
	d.mu.Unlock()
	if !running {
		return
	}
	select {
	case fire <- task:
	default:
		// Queue full: release the name so the caller can resubmit.
		d.release(task.Name)
		d.log.Error("delivery queue full, task dropped", logx.String("task", task.Name))
	}
}

func (d *Dispatcher) release(name string) {
	d.mu.Lock()
	delete(d.pending, name)
	d.mu.Unlock()
}

func (d *Dispatcher) worker(ctx context.Context, stopCh <-chan struct{}, fire <-chan TaskDescriptor) {
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-fire:
			d.deliver(ctx, stopCh, task)
			d.release(task.Name)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, stopCh <-chan struct{}, task TaskDescriptor) {
	attempts := 1 + d.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = d.post(ctx, task)
		if lastErr == nil {
			d.log.Debug("task delivered",
				logx.String("task", task.Name),
				logx.Int("attempt", attempt))
			return
		}
		d.log.Warn("task delivery failed",
			logx.String("task", task.Name),
			logx.Int("attempt", attempt),
			logx.Err(lastErr))
		if attempt >= attempts {
			break
		}

		delay := d.cfg.RetryBase << (attempt - 1)
		if delay > d.cfg.RetryMaxDelay {
			delay = d.cfg.RetryMaxDelay
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	d.log.Error("task abandoned after retries",
		logx.String("task", task.Name),
		logx.Err(lastErr))
}

func (d *Dispatcher) post(ctx context.Context, task TaskDescriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.TargetURL, bytes.NewReader(task.Body()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-Name", task.Name)
	if task.Principal != "" {
		req.Header.Set("X-Task-Principal", task.Principal)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned %s", resp.Status)
	}
	return nil
}
