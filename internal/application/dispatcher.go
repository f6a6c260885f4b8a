package application

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
)

// Dispatcher detaches webhook processing from the HTTP acknowledgment: the
// transport submits a delivery and returns immediately, a bounded pool of
// workers runs it. When the queue is full the delivery still runs on its own
// goroutine; an accepted delivery is never dropped.
type Dispatcher struct {
	processor *Processor
	registry  *Registry
	queue     chan *domain.WebhookDelivery
	logger    zerolog.Logger

	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewDispatcher creates a dispatcher with the given worker count and starts
// its workers.
func NewDispatcher(processor *Processor, registry *Registry, workers int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		processor: processor,
		registry:  registry,
		queue:     make(chan *domain.WebhookDelivery, workers*4),
		logger:    logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit hands a delivery to the pool and returns without waiting for the
// result. The transport's responsibility ends here.
func (d *Dispatcher) Submit(delivery *domain.WebhookDelivery) {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		d.logger.Warn().
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Msg("Dispatcher closed, running delivery inline")
		d.run(delivery)
		return
	}
	select {
	case d.queue <- delivery:
		d.closeMu.Unlock()
	default:
		// Queue full. Spill to a dedicated goroutine rather than block the
		// HTTP acknowledgment or drop the delivery.
		d.wg.Add(1)
		d.closeMu.Unlock()
		go func() {
			defer d.wg.Done()
			d.run(delivery)
		}()
	}
}

// Close stops accepting new work and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for delivery := range d.queue {
		d.run(delivery)
	}
}

// run executes one delivery under a background context: the HTTP request
// that carried it is long gone, and detached work is never cancelled.
func (d *Dispatcher) run(delivery *domain.WebhookDelivery) {
	handler, ok := d.registry.Lookup(delivery.Topic)
	if !ok {
		d.logger.Warn().
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Str("shop", delivery.Shop).
			Msg("No handler registered for topic")
		return
	}
	// Every Process failure path dead-letters or logs before returning;
	// there is nobody left to return the error to.
	_ = d.processor.Process(context.Background(), delivery, handler)
}
