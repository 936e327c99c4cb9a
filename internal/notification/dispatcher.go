package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/pkg/expo"
	"github.com/rs/zerolog"
)

// TokenStore is the token persistence the dispatcher depends on
type TokenStore interface {
	ValidTokensForUsers(userIDs []uuid.UUID) ([]model.PushToken, error)
	MarkInvalid(token, reason string) (bool, error)
}

// TicketStore persists gateway tickets pending receipt confirmation
type TicketStore interface {
	Save(ticketID, token string, userID *uuid.UUID) error
}

// Payload is the notification content handed in by alert/adoption
// workflows. Category travels separately because it gates delivery rather
// than describing content.
type Payload struct {
	Title     string
	Body      string
	Type      string // history/classification tag, forwarded in data
	Data      map[string]string
	Sound     string
	Priority  string
	Badge     *int
	ChannelID string
}

// DeliveryStatus is the per-token outcome of one dispatch
type DeliveryStatus string

const (
	DeliveryAccepted     DeliveryStatus = "accepted"      // gateway issued a ticket
	DeliveryFiltered     DeliveryStatus = "filtered"      // preferences disallow the category
	DeliveryInvalidToken DeliveryStatus = "invalid_token" // token failed the gateway format check
	DeliveryRejected     DeliveryStatus = "rejected"      // gateway returned an immediate error
	DeliveryFailed       DeliveryStatus = "failed"        // chunk-level transport failure
)

// Delivery records what happened to one candidate token
type Delivery struct {
	Token     string
	UserID    uuid.UUID
	Status    DeliveryStatus
	TicketID  string
	ErrorCode string
}

// DispatchResult summarizes one dispatch. Targeted counts tokens that
// survived format and preference checks; accepted counts gateway tickets
// persisted. accepted < targeted is normal, not an error.
type DispatchResult struct {
	Targeted   int
	Accepted   int
	Deliveries []Delivery
}

// AcceptedUserIDs returns the distinct users that had at least one
// accepted delivery, for the caller's best-effort history write.
func (r *DispatchResult) AcceptedUserIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, d := range r.Deliveries {
		if d.Status == DeliveryAccepted && !seen[d.UserID] {
			seen[d.UserID] = true
			ids = append(ids, d.UserID)
		}
	}
	return ids
}

// Dispatcher composes gateway messages, chunks them to gateway limits,
// sends them sequentially and records resulting tickets or immediate
// failures.
type Dispatcher struct {
	tokens     TokenStore
	tickets    TicketStore
	gateway    expo.Gateway
	chunkLimit int
	log        zerolog.Logger
}

func NewDispatcher(tokens TokenStore, tickets TicketStore, gateway expo.Gateway, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:     tokens,
		tickets:    tickets,
		gateway:    gateway,
		chunkLimit: expo.SendChunkLimit,
		log:        logger,
	}
}

// SendToUsers resolves the users' valid tokens and dispatches to them
func (d *Dispatcher) SendToUsers(ctx context.Context, payload Payload, userIDs []uuid.UUID, category Category) (*DispatchResult, error) {
	rows, err := d.tokens.ValidTokensForUsers(userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve tokens: %w", err)
	}
	return d.SendToTokens(ctx, payload, rows, category)
}

// SendToTokens dispatches to an explicit token set. Chunks are sent
// sequentially; a chunk-level failure is logged and the pipeline moves on
// to the next chunk. Only store connectivity failures abort the run.
func (d *Dispatcher) SendToTokens(ctx context.Context, payload Payload, rows []model.PushToken, category Category) (*DispatchResult, error) {
	result := &DispatchResult{}

	// Format check and preference gate. Malformed tokens are permanently
	// invalidated and never count as targeted; filtered tokens are the
	// expected steady state, not an error.
	var candidates []model.PushToken
	for _, row := range rows {
		if !expo.IsExpoPushToken(row.Token) {
			if _, err := d.tokens.MarkInvalid(row.Token, "malformed token"); err != nil {
				return result, fmt.Errorf("invalidate malformed token: %w", err)
			}
			d.log.Warn().Str("token", row.Token).Msg("dropping malformed push token")
			result.Deliveries = append(result.Deliveries, Delivery{
				Token: row.Token, UserID: row.UserID, Status: DeliveryInvalidToken,
			})
			continue
		}
		if !Allows(row.Preferences, category) {
			result.Deliveries = append(result.Deliveries, Delivery{
				Token: row.Token, UserID: row.UserID, Status: DeliveryFiltered,
			})
			continue
		}
		candidates = append(candidates, row)
	}

	result.Targeted = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	messages := make([]expo.PushMessage, 0, len(candidates))
	for _, row := range candidates {
		messages = append(messages, buildMessage(payload, row.Token))
	}

	for start := 0; start < len(messages); start += d.chunkLimit {
		end := start + d.chunkLimit
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]
		chunkRows := candidates[start:end]

		tickets, err := d.gateway.SendMessages(ctx, chunk)
		if err != nil {
			// One bad chunk must never abort the whole dispatch
			d.log.Error().Err(err).Int("size", len(chunk)).Msg("push chunk send failed")
			for _, row := range chunkRows {
				result.Deliveries = append(result.Deliveries, Delivery{
					Token: row.Token, UserID: row.UserID, Status: DeliveryFailed,
				})
			}
			continue
		}

		for i, ticket := range tickets {
			row := chunkRows[i]
			if err := d.recordTicket(result, ticket, row); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// recordTicket persists an accepted ticket or handles an immediate
// gateway rejection. Store errors are hard failures.
func (d *Dispatcher) recordTicket(result *DispatchResult, ticket expo.PushTicket, row model.PushToken) error {
	if ticket.Status == expo.StatusOK && ticket.ID != "" {
		userID := row.UserID
		if err := d.tickets.Save(ticket.ID, row.Token, &userID); err != nil {
			return fmt.Errorf("save ticket %s: %w", ticket.ID, err)
		}
		result.Accepted++
		result.Deliveries = append(result.Deliveries, Delivery{
			Token: row.Token, UserID: row.UserID, Status: DeliveryAccepted, TicketID: ticket.ID,
		})
		return nil
	}

	code := ticket.ErrorCode()
	if expo.IsPermanentError(code) {
		if _, err := d.tokens.MarkInvalid(row.Token, code); err != nil {
			return fmt.Errorf("invalidate token after %s: %w", code, err)
		}
		d.log.Info().Str("token", row.Token).Str("code", code).Msg("token invalidated by gateway rejection")
	} else {
		d.log.Warn().Str("token", row.Token).Str("code", code).Str("message", ticket.Message).
			Msg("gateway rejected message")
	}
	result.Deliveries = append(result.Deliveries, Delivery{
		Token: row.Token, UserID: row.UserID, Status: DeliveryRejected, ErrorCode: code,
	})
	return nil
}

func buildMessage(payload Payload, token string) expo.PushMessage {
	sound := payload.Sound
	if sound == "" {
		sound = "default"
	}
	priority := payload.Priority
	if priority == "" {
		priority = "high"
	}
	data := payload.Data
	if payload.Type != "" {
		data = make(map[string]string, len(payload.Data)+1)
		for k, v := range payload.Data {
			data[k] = v
		}
		data["type"] = payload.Type
	}
	return expo.PushMessage{
		To:        token,
		Title:     payload.Title,
		Body:      payload.Body,
		Data:      data,
		Sound:     sound,
		Priority:  priority,
		Badge:     payload.Badge,
		ChannelID: payload.ChannelID,
	}
}
