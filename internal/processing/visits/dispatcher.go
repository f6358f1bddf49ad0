package visits

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"github.com/vlourenco/atalho/internal/events"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"github.com/vlourenco/atalho/internal/processing/links"
	"go.uber.org/zap"
)

var visitsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "visits_dropped_total",
	Help: "Visits dropped because the dispatch queue was full or publish failed",
})

// WorkerPool is the in-process dispatcher: a bounded queue drained by N
// workers. Dispatch never blocks the redirect path; a full queue drops the
// visit (at-most-once, undercount over blocked redirect).
type WorkerPool struct {
	agg     *Aggregator
	queue   chan links.VisitMeta
	workers int
	wg      sync.WaitGroup
}

func NewWorkerPool(agg *Aggregator, queueSize, workers int) *WorkerPool {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &WorkerPool{
		agg:     agg,
		queue:   make(chan links.VisitMeta, queueSize),
		workers: workers,
	}
}

func (p *WorkerPool) Start() {
	for range p.workers {
		p.wg.Add(1)
		go p.run()
	}
}

// Stop drains the queue and waits for in-flight records to finish.
func (p *WorkerPool) Stop() {
	close(p.queue)
	p.wg.Wait()
}

func (p *WorkerPool) Dispatch(meta links.VisitMeta) {
	select {
	case p.queue <- meta:
	default:
		visitsDropped.Inc()
	}
}

func (p *WorkerPool) run() {
	defer p.wg.Done()

	for meta := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := p.agg.Record(ctx, meta); err != nil {
			logger.Warn("visit aggregation failed",
				zap.Error(err),
				zap.String("link_id", meta.LinkID),
			)
		}
		cancel()
	}
}

// KafkaDispatcher publishes VisitRecorded events instead of aggregating
// in-process; a separate consumer binary applies them.
type KafkaDispatcher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		timeout: 5 * time.Second,
	}
}

func (d *KafkaDispatcher) Close() error { return d.writer.Close() }

func (d *KafkaDispatcher) Dispatch(meta links.VisitMeta) {
	event := events.VisitRecorded{
		EventID:    uuid.New().String(),
		LinkID:     meta.LinkID,
		Address:    meta.Address,
		DomainID:   meta.DomainID,
		UserAgent:  meta.UserAgent,
		Referrer:   meta.Referrer,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: meta.OccurredAt.UTC().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		visitsDropped.Inc()
		logger.Warn("failed to marshal visit event", zap.Error(err))
		return
	}

	// Publish off the request goroutine; the redirect never waits on Kafka.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(meta.LinkID),
			Value: payload,
		})
		if err != nil {
			visitsDropped.Inc()
			logger.Warn("failed to publish visit event",
				zap.Error(err),
				zap.String("link_id", meta.LinkID),
			)
		}
	}()
}
