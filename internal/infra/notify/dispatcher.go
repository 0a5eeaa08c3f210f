package notify

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"ordersvc/internal/domain/model"
)

// Sender は1件の通知を届ける
type Sender interface {
	Send(ctx context.Context, snap model.OrderSnapshot) error
}

// Dispatcher は確定した注文をキューに積み、ワーカーが非同期で送る。
// Notifyは呼び出し元を待たせない（満杯なら捨ててログに残す）
type Dispatcher struct {
	sender Sender
	retry  RetryConfig
	log    *slog.Logger

	queue  chan model.OrderSnapshot
	g      *errgroup.Group
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, workers, queueSize int, retry RetryConfig, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	d := &Dispatcher{
		sender: sender,
		retry:  retry,
		log:    log,
		queue:  make(chan model.OrderSnapshot, queueSize),
		g:      g,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, snap model.OrderSnapshot) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.ErrorContext(ctx, "notification dropped: dispatcher closed", "order_id", snap.OrderID)
		return
	}

	select {
	case d.queue <- snap:
	default:
		d.log.ErrorContext(ctx, "notification dropped: queue full", "order_id", snap.OrderID)
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for snap := range d.queue {
		err := retryWithBackoff(ctx, d.retry, func() error {
			return d.sender.Send(ctx, snap)
		})
		if err != nil {
			d.log.Error("order notification failed", "order_id", snap.OrderID, "error", err)
			continue
		}
		d.log.Info("order notification sent", "order_id", snap.OrderID)
	}
}

// Close は受付を止め、キューに残った分を送り切るまで待つ。
// ctxが先に終わったら送信中のリトライを打ち切る
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.g.Wait() }()

	select {
	case err := <-done:
		d.cancel()
		return err
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
