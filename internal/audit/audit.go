package audit

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Event kinds emitted by the pipeline stages.
const (
	KindValidated               = "ValidatedInstruction"
	KindRejected                = "RejectedInstruction"
	KindSkippedCanceled         = "SkippedCanceledInstruction"
	KindProcessedCancellation   = "ProcessedCancellation"
	KindUnknownTransaction      = "UnknownTransaction"
	KindMatchedTransactions     = "MatchedTransactions"
	KindClearingReport          = "ClearingReport"
	KindCanceledPair            = "CanceledPair"
	KindPositioningReport       = "PositioningReport"
	KindSettled                 = "SettledTransaction"
	KindSettlementSkipped       = "SettlementSkipped"
	KindSettlementFailed        = "SettlementFailed"
	KindSettlementInconsistency = "SettlementInconsistency"
	KindPartialFill             = "PartialFill"
)

// Event is one structured audit record.
type Event struct {
	gorm.Model    `json:"-"`
	Tick          int       `json:"tick"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id"`
	Detail        string    `json:"detail"`
	Transactional bool      `json:"transactional"`
}

type dedupKey struct {
	actor         string
	kind          string
	transactionID string
	detail        string
}

// Sink collects audit events into two streams: the full activity stream, and
// a transactional sub-stream that drops exact repeats of the same event. An
// event is a repeat only when actor, kind, transaction and detail all match;
// distinct outcomes for the same transaction (a partial fill followed by the
// remainder settling) are separate events. Repeated identical events carry
// no new information for the event log, while the activity stream keeps
// everything.
type Sink struct {
	activity      []Event
	transactional []Event
	seen          map[dedupKey]bool
}

func NewSink() *Sink {
	return &Sink{
		seen: make(map[dedupKey]bool),
	}
}

// Record appends an activity event and, when transactional, also appends it
// to the deduplicated transactional stream.
func (s *Sink) Record(tick int, actor, kind, transactionID, detail string, transactional bool) {
	event := Event{
		Tick:          tick,
		Timestamp:     time.Now(),
		Actor:         actor,
		Kind:          kind,
		TransactionID: transactionID,
		Detail:        detail,
		Transactional: transactional,
	}
	s.activity = append(s.activity, event)

	if transactional {
		key := dedupKey{actor: actor, kind: kind, transactionID: transactionID, detail: detail}
		if !s.seen[key] {
			s.seen[key] = true
			s.transactional = append(s.transactional, event)
		}
	}

	log.Debug().
		Str("service", "audit").
		Int("tick", tick).
		Str("actor", actor).
		Str("kind", kind).
		Str("transaction_id", transactionID).
		Str("detail", detail).
		Msg("audit event")
}

// Activity returns the full activity stream.
func (s *Sink) Activity() []Event {
	return s.activity
}

// Transactional returns the deduplicated transactional sub-stream.
func (s *Sink) Transactional() []Event {
	return s.transactional
}
