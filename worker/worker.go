// Package worker is the job intake loop: a fixed-interval poll that takes at
// most one message per tick and runs it through the pipeline sequentially.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/queue"
)

type Dispatcher interface {
	Run(ctx context.Context, msg model.PublishMessage) error
}

type Worker struct {
	Queue        queue.Queue
	Pipeline     Dispatcher
	PollInterval time.Duration
}

// Run polls until the context is cancelled. There is no cross-submission
// parallelism: a submission fully completes before the next poll.
func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	log.Printf("worker: polling every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	msg, err := w.Queue.Receive(ctx)
	if err != nil {
		log.Printf("worker: receive: %v", err)
		return
	}
	if msg == nil {
		return
	}

	var pm model.PublishMessage
	if err := json.Unmarshal(msg.Body, &pm); err != nil || pm.RequestID == "" {
		// Poison message: it will never parse better on redelivery.
		log.Printf("worker: dropping malformed message %s: %v", msg.Receipt, err)
		w.delete(ctx, msg.Receipt)
		return
	}

	// Pipeline failures are terminal and already recorded in the audit
	// trail; either way the delivery is acknowledged after dispatch.
	if err := w.Pipeline.Run(ctx, pm); err != nil {
		log.Printf("worker: request %s: %v", pm.RequestID, err)
	}
	w.delete(ctx, msg.Receipt)
}

func (w *Worker) delete(ctx context.Context, receipt string) {
	if err := w.Queue.Delete(ctx, receipt); err != nil {
		log.Printf("worker: delete %s: %v", receipt, err)
	}
}
