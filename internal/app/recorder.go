package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/lampsync"
	"github.com/dokzlo13/lampd/internal/ledger"
)

// recorderQueueSize bounds ledger writes waiting behind a slow disk.
const recorderQueueSize = 64

// ledgerKinds maps the engine transitions worth keeping to ledger event types.
// Poll noise (unchanged, skipped, discarded) is not persisted.
var ledgerKinds = map[lampsync.EventKind]ledger.EventType{
	lampsync.EventInitialized:  ledger.EventInitialized,
	lampsync.EventRemoteChange: ledger.EventRemoteChange,
	lampsync.EventUserEdit:     ledger.EventUserEdit,
	lampsync.EventWriteOK:      ledger.EventWriteOK,
	lampsync.EventWriteFailed:  ledger.EventWriteFailed,
	lampsync.EventReadFailed:   ledger.EventReadFailed,
}

// LedgerRecorder persists engine transitions off the engine loop.
type LedgerRecorder struct {
	ledger  *ledger.Ledger
	entries chan ledger.Entry
}

// NewLedgerRecorder creates a recorder writing to l. Run must be started.
func NewLedgerRecorder(l *ledger.Ledger) *LedgerRecorder {
	return &LedgerRecorder{
		ledger:  l,
		entries: make(chan ledger.Entry, recorderQueueSize),
	}
}

// Record implements lampsync.Recorder. It never blocks the engine.
func (r *LedgerRecorder) Record(ev lampsync.Event) {
	entry, ok := toEntry(ev)
	if !ok {
		return
	}

	select {
	case r.entries <- entry:
	default:
		log.Warn().Str("event_type", string(entry.EventType)).Msg("Ledger queue full, dropping entry")
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is left.
func (r *LedgerRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-r.entries:
					r.append(e)
				default:
					return
				}
			}
		case e := <-r.entries:
			r.append(e)
		}
	}
}

func (r *LedgerRecorder) append(e ledger.Entry) {
	if err := r.ledger.Append(e); err != nil {
		log.Error().Err(err).Str("event_type", string(e.EventType)).Msg("Failed to append ledger entry")
	}
}

func toEntry(ev lampsync.Event) (ledger.Entry, bool) {
	kind, ok := ledgerKinds[ev.Kind]
	if !ok {
		return ledger.Entry{}, false
	}

	entry := ledger.Entry{EventType: kind, EditID: ev.EditID}
	if ev.Kind != lampsync.EventReadFailed {
		entry.Color = ev.Color.Hex()
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	return entry, true
}
