package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/pkg/expo"
	"github.com/rs/zerolog"
)

// fakePendingStore mimics the atomic still-pending claim: MarkProcessed
// succeeds only the first time per ticket.
type fakePendingStore struct {
	pending   []model.PushTicket
	processed map[string]model.TicketStatus
}

func newFakePendingStore(tickets ...model.PushTicket) *fakePendingStore {
	return &fakePendingStore{pending: tickets, processed: make(map[string]model.TicketStatus)}
}

func (f *fakePendingStore) PendingBatch(limit int) ([]model.PushTicket, error) {
	var out []model.PushTicket
	for _, t := range f.pending {
		if _, done := f.processed[t.TicketID]; !done {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePendingStore) MarkProcessed(ticketID string, status model.TicketStatus, details string) (bool, error) {
	if _, done := f.processed[ticketID]; done {
		return false, nil
	}
	f.processed[ticketID] = status
	return true, nil
}

func pendingTicket(id, token string) model.PushTicket {
	return model.PushTicket{TicketID: id, PushToken: token, Status: model.TicketPending}
}

func TestReceiptRunResolvesAndInvalidates(t *testing.T) {
	tickets := newFakePendingStore(
		pendingTicket("t1", "ExponentPushToken[a]"),
		pendingTicket("t2", "ExponentPushToken[b]"),
		pendingTicket("t3", "ExponentPushToken[c]"),
	)
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1": {Status: expo.StatusOK},
		"t2": {Status: expo.StatusError, Details: &expo.ErrorDetails{Error: expo.ErrCodeDeviceNotRegistered}},
		// t3 has no receipt yet
	}}

	p := NewReceiptProcessor(tickets, tokens, gateway, 100, zerolog.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if stats.Fetched != 3 || stats.Resolved != 2 || stats.Invalidated != 1 {
		t.Errorf("stats = %+v, want fetched=3 resolved=2 invalidated=1", stats)
	}
	if tickets.processed["t1"] != model.TicketOK {
		t.Errorf("t1 status = %s, want ok", tickets.processed["t1"])
	}
	if tickets.processed["t2"] != model.TicketError {
		t.Errorf("t2 status = %s, want error", tickets.processed["t2"])
	}
	if _, done := tickets.processed["t3"]; done {
		t.Error("t3 has no receipt yet and must stay pending")
	}
	if reason := tokens.invalidated["ExponentPushToken[b]"]; reason != expo.ErrCodeDeviceNotRegistered {
		t.Errorf("token b invalidation reason = %q, want DeviceNotRegistered", reason)
	}
	if _, ok := tokens.invalidated["ExponentPushToken[a]"]; ok {
		t.Error("token a delivered fine and must stay valid")
	}
}

func TestReceiptTransientErrorLeavesTokenValid(t *testing.T) {
	tickets := newFakePendingStore(pendingTicket("t1", "ExponentPushToken[a]"))
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1": {Status: expo.StatusError, Details: &expo.ErrorDetails{Error: expo.ErrCodeMessageRateExceeded}},
	}}

	p := NewReceiptProcessor(tickets, tokens, gateway, 100, zerolog.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if stats.Resolved != 1 || stats.Transient != 1 || stats.Invalidated != 0 {
		t.Errorf("stats = %+v, want resolved=1 transient=1 invalidated=0", stats)
	}
	if tickets.processed["t1"] != model.TicketErrorTransient {
		t.Errorf("t1 status = %s, want error_transient", tickets.processed["t1"])
	}
	if len(tokens.invalidated) != 0 {
		t.Error("transient receipt error must never invalidate the token")
	}
}

func TestReceiptUnknownErrorCodeIsTransient(t *testing.T) {
	tickets := newFakePendingStore(pendingTicket("t1", "ExponentPushToken[a]"))
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1": {Status: expo.StatusError, Details: &expo.ErrorDetails{Error: "BrandNewGatewayCode"}},
	}}

	p := NewReceiptProcessor(tickets, tokens, gateway, 100, zerolog.Nop())
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if tickets.processed["t1"] != model.TicketErrorTransient {
		t.Errorf("t1 status = %s, want error_transient for an unrecognized code", tickets.processed["t1"])
	}
	if len(tokens.invalidated) != 0 {
		t.Error("unrecognized receipt code must never invalidate the token")
	}
}

func TestReceiptDoubleRunDoesNotDoubleInvalidate(t *testing.T) {
	tickets := newFakePendingStore(pendingTicket("t1", "ExponentPushToken[a]"))
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1": {Status: expo.StatusError, Details: &expo.ErrorDetails{Error: expo.ErrCodeUnregistered}},
	}}

	p := NewReceiptProcessor(tickets, tokens, gateway, 100, zerolog.Nop())
	invalidations := 0
	for run := 0; run < 2; run++ {
		stats, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d error: %v", run, err)
		}
		invalidations += stats.Invalidated
	}
	if invalidations != 1 {
		t.Errorf("invalidations across two runs = %d, want 1", invalidations)
	}
	if len(gateway.receiptCalls) != 1 {
		t.Errorf("receipt lookups = %d, want 1 (second run has nothing pending)", len(gateway.receiptCalls))
	}
}

func TestReceiptLostClaimSkipsInvalidation(t *testing.T) {
	// A racing run resolved the ticket between our PendingBatch and
	// MarkProcessed. The claim fails and the side effect must not repeat.
	tickets := newFakePendingStore(pendingTicket("t1", "ExponentPushToken[a]"))
	tickets.processed["t1"] = model.TicketError
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1": {Status: expo.StatusError, Details: &expo.ErrorDetails{Error: expo.ErrCodeDeviceNotRegistered}},
	}}

	p := &ReceiptProcessor{
		tickets:    &racingPendingStore{fakePendingStore: tickets},
		tokens:     tokens,
		gateway:    gateway,
		batchSize:  100,
		chunkLimit: expo.ReceiptChunkLimit,
		log:        zerolog.Nop(),
	}
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if stats.Invalidated != 0 || len(tokens.invalidated) != 0 {
		t.Errorf("lost claim must not invalidate; stats = %+v", stats)
	}
}

// racingPendingStore reports the ticket as pending even though the
// underlying store already resolved it, reproducing the batch/claim window.
type racingPendingStore struct {
	*fakePendingStore
}

func (r *racingPendingStore) PendingBatch(limit int) ([]model.PushTicket, error) {
	return r.pending, nil
}

func TestReceiptUnknownTicketSkipped(t *testing.T) {
	tickets := newFakePendingStore(pendingTicket("t1", "ExponentPushToken[a]"))
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{receipts: map[string]expo.PushReceipt{
		"t1":       {Status: expo.StatusOK},
		"stray-id": {Status: expo.StatusOK},
	}}
	// Force the stray receipt into the response despite not being asked for
	gw := &strayGateway{fakeGateway: gateway}

	p := NewReceiptProcessor(tickets, tokens, gw, 100, zerolog.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if stats.Skipped != 1 || stats.Resolved != 1 {
		t.Errorf("stats = %+v, want skipped=1 resolved=1", stats)
	}
}

type strayGateway struct {
	*fakeGateway
}

func (g *strayGateway) GetReceipts(ctx context.Context, ids []string) (map[string]expo.PushReceipt, error) {
	return g.receipts, nil
}

func TestReceiptChunkFailureContinues(t *testing.T) {
	tickets := newFakePendingStore(
		pendingTicket("t1", "ExponentPushToken[a]"),
		pendingTicket("t2", "ExponentPushToken[b]"),
	)
	tokens := newFakeTokenStore()
	gateway := &fakeGateway{
		receipts: map[string]expo.PushReceipt{
			"t1": {Status: expo.StatusOK},
			"t2": {Status: expo.StatusOK},
		},
		receiptsErr: func(call int) error {
			if call == 0 {
				return errors.New("gateway unreachable")
			}
			return nil
		},
	}

	p := NewReceiptProcessor(tickets, tokens, gateway, 100, zerolog.Nop())
	p.chunkLimit = 1

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("a failed receipt chunk must not abort the run: %v", err)
	}
	if stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1 (second chunk only)", stats.Resolved)
	}
	if len(gateway.receiptCalls) != 2 {
		t.Errorf("receipt lookups = %d, want 2", len(gateway.receiptCalls))
	}
}

func TestReceiptEmptyBacklog(t *testing.T) {
	p := NewReceiptProcessor(newFakePendingStore(), newFakeTokenStore(), &fakeGateway{}, 100, zerolog.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Fetched != 0 || stats.Resolved != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}
