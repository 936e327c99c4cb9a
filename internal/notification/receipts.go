package notification

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/pkg/expo"
	"github.com/rs/zerolog"
)

// ReceiptTicketStore is the ticket persistence the worker depends on
type ReceiptTicketStore interface {
	PendingBatch(limit int) ([]model.PushTicket, error)
	MarkProcessed(ticketID string, status model.TicketStatus, details string) (bool, error)
}

// ReceiptTokenStore invalidates tokens that reported permanent failures
type ReceiptTokenStore interface {
	MarkInvalid(token, reason string) (bool, error)
}

// RunStats summarizes one worker run
type RunStats struct {
	Fetched     int // pending tickets picked up
	Resolved    int // tickets moved to a terminal state
	Invalidated int // tokens invalidated from permanent receipt errors
	Transient   int // tickets closed as error_transient
	Skipped     int // receipts without a matching local ticket
}

// ReceiptProcessor periodically redeems pending tickets for receipts and
// reconciles token validity. It runs independently from the dispatch
// path; overlapping runs are safe because the ticket claim is atomic.
type ReceiptProcessor struct {
	tickets    ReceiptTicketStore
	tokens     ReceiptTokenStore
	gateway    expo.Gateway
	batchSize  int
	chunkLimit int
	log        zerolog.Logger
}

func NewReceiptProcessor(tickets ReceiptTicketStore, tokens ReceiptTokenStore, gateway expo.Gateway, batchSize int, logger zerolog.Logger) *ReceiptProcessor {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &ReceiptProcessor{
		tickets:    tickets,
		tokens:     tokens,
		gateway:    gateway,
		batchSize:  batchSize,
		chunkLimit: expo.ReceiptChunkLimit,
		log:        logger,
	}
}

// Run processes one batch of pending tickets. Receipt-id chunks are
// queried sequentially; a failed chunk lookup is logged and skipped so a
// gateway hiccup never stalls the rest of the batch. Only store
// connectivity failures abort the run.
func (p *ReceiptProcessor) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	batch, err := p.tickets.PendingBatch(p.batchSize)
	if err != nil {
		return stats, fmt.Errorf("fetch pending tickets: %w", err)
	}
	stats.Fetched = len(batch)
	if len(batch) == 0 {
		return stats, nil
	}

	byID := make(map[string]model.PushTicket, len(batch))
	ids := make([]string, 0, len(batch))
	for _, t := range batch {
		byID[t.TicketID] = t
		ids = append(ids, t.TicketID)
	}

	for _, chunk := range expo.ChunkIDs(ids, p.chunkLimit) {
		receipts, err := p.gateway.GetReceipts(ctx, chunk)
		if err != nil {
			p.log.Error().Err(err).Int("size", len(chunk)).Msg("receipt lookup failed")
			continue
		}

		for id, receipt := range receipts {
			ticket, ok := byID[id]
			if !ok {
				// The gateway returned a receipt we never asked about
				p.log.Warn().Str("ticket_id", id).Msg("receipt without matching local ticket, skipping")
				stats.Skipped++
				continue
			}
			if err := p.resolve(ticket, id, receipt, stats); err != nil {
				return stats, err
			}
		}
		// Tickets absent from the receipt map simply have no outcome yet
		// and stay pending for a later run.
	}

	return stats, nil
}

// resolve transitions one ticket. The ticket is claimed first with an
// atomic still-pending update; token invalidation only happens when this
// run won the claim, so overlapping schedules never double-invalidate.
func (p *ReceiptProcessor) resolve(ticket model.PushTicket, id string, receipt expo.PushReceipt, stats *RunStats) error {
	details := marshalReceipt(receipt)

	if receipt.Status == expo.StatusOK {
		updated, err := p.tickets.MarkProcessed(id, model.TicketOK, details)
		if err != nil {
			return fmt.Errorf("mark ticket %s ok: %w", id, err)
		}
		if updated {
			stats.Resolved++
		}
		return nil
	}

	code := receipt.ErrorCode()
	if expo.IsPermanentError(code) {
		updated, err := p.tickets.MarkProcessed(id, model.TicketError, details)
		if err != nil {
			return fmt.Errorf("mark ticket %s error: %w", id, err)
		}
		if !updated {
			// A racing run already took the invalidation side effect
			return nil
		}
		stats.Resolved++
		if _, err := p.tokens.MarkInvalid(ticket.PushToken, code); err != nil {
			return fmt.Errorf("invalidate token after receipt %s: %w", code, err)
		}
		stats.Invalidated++
		p.log.Info().Str("ticket_id", id).Str("code", code).Msg("token invalidated by delivery receipt")
		return nil
	}

	// Ambiguous failure: close the ticket but leave the token alone, a
	// token that may still be live must not be punished.
	updated, err := p.tickets.MarkProcessed(id, model.TicketErrorTransient, details)
	if err != nil {
		return fmt.Errorf("mark ticket %s transient: %w", id, err)
	}
	if updated {
		stats.Resolved++
		stats.Transient++
		p.log.Warn().Str("ticket_id", id).Str("code", code).Msg("transient receipt error, token untouched")
	}
	return nil
}

func marshalReceipt(receipt expo.PushReceipt) string {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return ""
	}
	return string(raw)
}
