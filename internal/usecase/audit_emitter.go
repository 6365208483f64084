package usecase

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

const auditAppendTimeout = 5 * time.Second

// AuditEmitter is a fire-and-forget AuditLogger. Record never blocks the
// caller: entries go through a bounded queue to a single writer, and are
// dropped with a log line when the queue is full.
type AuditEmitter struct {
	Repo  AuditRepository
	Clock Clock

	queue   chan domain.AuditEntry
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewAuditEmitter(repo AuditRepository, clock Clock, queueSize int) *AuditEmitter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	e := &AuditEmitter{
		Repo:  repo,
		Clock: clock,
		queue: make(chan domain.AuditEntry, queueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *AuditEmitter) Record(ctx context.Context, entry domain.AuditEntry) {
	if e == nil || e.closed.Load() {
		return
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = CorrelationID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = e.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	if entry.Result == "" {
		entry.Result = domain.AuditResultSuccess
	}
	defer func() {
		// Close may race with a late Record; a send on the closed queue
		// counts as a drop.
		if recover() != nil {
			e.dropped.Add(1)
		}
	}()
	select {
	case e.queue <- entry:
	default:
		e.dropped.Add(1)
		log.Printf("audit queue full: dropped %s correlation_id=%s", entry.EventType, entry.CorrelationID)
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx
// to end.
func (e *AuditEmitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.once.Do(func() {
		e.closed.Store(true)
		close(e.queue)
	})
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return errors.New("audit emitter drain interrupted")
	}
}

func (e *AuditEmitter) Dropped() int64 { return e.dropped.Load() }

func (e *AuditEmitter) Failed() int64 { return e.failed.Load() }

func (e *AuditEmitter) run() {
	defer close(e.done)
	for entry := range e.queue {
		if e.Repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditAppendTimeout)
		if _, err := e.Repo.Append(ctx, entry); err != nil {
			e.failed.Add(1)
			log.Printf("audit append failed: event=%s correlation_id=%s err=%v", entry.EventType, entry.CorrelationID, err)
		}
		cancel()
	}
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, domain.AuditEntry) {}

func auditOrNop(a AuditLogger) AuditLogger {
	if a == nil {
		return nopAudit{}
	}
	return a
}

// auditEntry builds an entry for actor; err, when set, marks it failed.
func auditEntry(actor domain.Actor, event domain.AuditEventType, draftID, evidenceID string, err error, payload map[string]any) domain.AuditEntry {
	entry := domain.AuditEntry{
		TenantID:    actor.TenantID,
		EventType:   event,
		ActorIDHash: hashString(actor.ID),
		DraftID:     draftID,
		EvidenceID:  evidenceID,
		Result:      domain.AuditResultSuccess,
		Payload:     payload,
	}
	if err != nil {
		entry.Result = domain.AuditResultFailure
		entry.ErrorCode = domain.Code(err)
	}
	return entry
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	return crypto.SHA256Hex([]byte(value))
}
