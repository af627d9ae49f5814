package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/observability"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Audit actions recorded by the pass service
const (
	AuditActionVerified      = "participant.verified"
	AuditActionPhotoUploaded = "photo.uploaded"
	AuditActionPassSaved     = "pass.saved"
)

// AuditEvent is one entry of the audit trail
type AuditEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email      string             `bson:"email" json:"email"`
	Action     string             `bson:"action" json:"action"`
	ResourceID string             `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	IPAddress  string             `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent  string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	RequestID  string             `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	Metadata   map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// RequestInfo carries caller details attached to audit events
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

// ContextWithRequestInfo stores caller details on ctx
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the caller details stored on ctx, if any
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Auditor records audit events without blocking the caller
type Auditor interface {
	Record(ctx context.Context, event AuditEvent)
}

// NopAuditor discards every event
type NopAuditor struct{}

// Record implements Auditor
func (NopAuditor) Record(context.Context, AuditEvent) {}

// AuditWriter persists a batch of events
type AuditWriter interface {
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

// MongoAuditWriter writes audit batches to a MongoDB collection
type MongoAuditWriter struct {
	collection *mongo.Collection
}

// NewMongoAuditWriter wraps the audit collection
func NewMongoAuditWriter(collection *mongo.Collection) *MongoAuditWriter {
	return &MongoAuditWriter{collection: collection}
}

// WriteBatch bulk inserts events, unordered
func (w *MongoAuditWriter) WriteBatch(ctx context.Context, events []AuditEvent) error {
	operations := make([]mongo.WriteModel, 0, len(events))
	for _, event := range events {
		operations = append(operations, mongo.NewInsertOneModel().SetDocument(event))
	}

	if _, err := w.collection.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert audit batch: %w", err)
	}
	return nil
}

const (
	auditBatchSize     = 100
	auditFlushInterval = 100 * time.Millisecond
	auditWriteTimeout  = 5 * time.Second
)

// AuditWorker drains a bounded buffer of events into an AuditWriter in
// batches. Events are dropped when the buffer is full.
type AuditWorker struct {
	writer AuditWriter
	events chan AuditEvent
	logger *logging.SafeLogger

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
	now      func() time.Time
}

// NewAuditWorker starts the background writer
func NewAuditWorker(writer AuditWriter, bufferSize int, logger *logging.SafeLogger) *AuditWorker {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	w := &AuditWorker{
		writer: writer,
		events: make(chan AuditEvent, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go w.run()

	logger.Info("audit worker started", zap.Int("buffer_size", bufferSize))
	return w
}

// Record enqueues an event, filling in timestamp and request details
func (w *AuditWorker) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = w.now().UTC()
	}
	info := RequestInfoFromContext(ctx)
	if event.RequestID == "" {
		event.RequestID = info.RequestID
	}
	if event.IPAddress == "" {
		event.IPAddress = info.IPAddress
	}
	if event.UserAgent == "" {
		event.UserAgent = info.UserAgent
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		observability.AuditEventsDropped.Inc()
		w.logger.Warn("audit buffer full, dropping event",
			zap.String("action", event.Action),
			zap.String("email", observability.MaskEmail(event.Email)))
	}
}

func (w *AuditWorker) run() {
	defer close(w.done)

	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	batch := make([]AuditEvent, 0, auditBatchSize)
	for {
		select {
		case event, ok := <-w.events:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= auditBatchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *AuditWorker) flush(batch []AuditEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := w.writer.WriteBatch(ctx, batch); err != nil {
		w.logger.Error("failed to write audit batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}
	w.logger.Debug("audit batch written", zap.Int("batch_size", len(batch)))
}

// Stop flushes pending events and stops the worker. Later Record calls are
// ignored.
func (w *AuditWorker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.events)
		w.mu.Unlock()
		<-w.done
		w.logger.Info("audit worker stopped")
	})
}
