package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"sync"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/events"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/metrics"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/negotiation"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/pricing"
	repository "github.com/aaravmahajanofficial/agri-marketplace/internal/repositories"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/transport"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/sendgrid"
	"github.com/shopspring/decimal"
)

const archivedChatsLimit = 50

// inbound kinds consumed by Run
var inboundKinds = []transport.EventKind{
	transport.KindOfferUpdate,
	transport.KindDealStatus,
	transport.KindNewMessage,
}

type chatService struct {
	negotiator *negotiation.Negotiator
	transport  transport.Adapter
	archive    NegotiationArchive
	carts      CartService
	email      sendgrid.EmailService
	publisher  events.Publisher

	// user id -> email, learned from authenticated callers
	contacts sync.Map
}

// NewChatService wires the negotiator to its side effects. email may be nil,
// in which case no deal notifications are sent.
func NewChatService(
	adapter transport.Adapter,
	archive NegotiationArchive,
	carts CartService,
	email sendgrid.EmailService,
	publisher events.Publisher,
	opts ...negotiation.Option,
) ChatService {
	s := &chatService{
		transport: adapter,
		archive:   archive,
		carts:     carts,
		email:     email,
		publisher: publisher,
	}

	opts = append(opts,
		negotiation.WithTerminalHook(s.onTerminal),
		negotiation.WithArchive(s.archived),
	)
	s.negotiator = negotiation.NewNegotiator(adapter, opts...)

	return s
}

func (s *chatService) OpenChat(ctx context.Context, userID string, req *models.OpenChatRequest) (*models.ChatResponse, error) {
	s.remember(ctx)

	if userID != req.BuyerID && userID != req.FarmerID {
		return nil, appErrors.ForbiddenError("You can only open negotiations you take part in").WithError(negotiation.ErrNotParticipant)
	}

	rec, err := s.negotiator.Open(ctx, negotiation.OpenParams{
		ID:            req.ChatID,
		ProductID:     req.ProductID,
		BuyerID:       req.BuyerID,
		FarmerID:      req.FarmerID,
		OriginalPrice: req.OriginalPrice,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordNegotiation(string(rec.Status), "local")

	return chatView(rec), nil
}

// GetChat serves live threads from memory and closed ones from the archive.
func (s *chatService) GetChat(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	s.remember(ctx)

	rec, err := s.negotiator.Get(chatID)
	if errors.Is(err, negotiation.ErrThreadNotFound) {
		archived, archErr := s.archive.GetByID(ctx, chatID)
		if errors.Is(archErr, repository.ErrNegotiationNotFound) {
			return nil, err
		}
		if archErr != nil {
			return nil, appErrors.DatabaseError("Failed to load negotiation").WithError(archErr)
		}
		rec, err = *archived, nil
	}
	if err != nil {
		return nil, err
	}

	if userID != rec.BuyerID && userID != rec.FarmerID {
		return nil, appErrors.ForbiddenError("You are not part of this negotiation").WithError(negotiation.ErrNotParticipant)
	}

	return chatView(rec), nil
}

func (s *chatService) ListChats(ctx context.Context, userID string) ([]models.ChatResponse, error) {
	s.remember(ctx)

	live := s.negotiator.ListByParticipant(userID)

	archived, err := s.archive.ListByParticipant(ctx, userID, archivedChatsLimit)
	if err != nil {
		return nil, appErrors.DatabaseError("Failed to list negotiations").WithError(err)
	}

	seen := make(map[string]bool, len(live))
	out := make([]models.ChatResponse, 0, len(live)+len(archived))

	for _, rec := range live {
		seen[rec.ID] = true
		out = append(out, *chatView(rec))
	}

	for _, rec := range archived {
		if !seen[rec.ID] {
			out = append(out, *chatView(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

func (s *chatService) ProposeOffer(ctx context.Context, userID string, chatID string, amount decimal.Decimal) (*models.ChatResponse, error) {
	s.remember(ctx)

	return s.local(s.negotiator.Propose(ctx, chatID, amount, userID))
}

func (s *chatService) AcceptDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	s.remember(ctx)

	return s.local(s.negotiator.Accept(ctx, chatID, userID))
}

func (s *chatService) RejectDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	s.remember(ctx)

	return s.local(s.negotiator.Reject(ctx, chatID, userID))
}

func (s *chatService) SendMessage(ctx context.Context, userID string, chatID string, content string) (*models.ChatResponse, error) {
	s.remember(ctx)

	rec, err := s.negotiator.SendMessage(ctx, chatID, userID, content)
	if err != nil {
		countTransportFailure(err)
		return nil, err
	}

	return chatView(rec), nil
}

// Run consumes inbound events until ctx is cancelled or the transport closes.
func (s *chatService) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := middleware.LoggerFromContext(ctx).With(slog.String("component", "chat-consumer"))
	ctx = middleware.WithLogger(ctx, logger)

	var wg sync.WaitGroup

	for _, kind := range inboundKinds {
		ch, err := s.transport.Subscribe(ctx, kind)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to subscribe to %s: %w", kind, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consume(ctx, ch)
		}()
	}

	logger.Info("Chat consumer started")
	wg.Wait()
	logger.Info("Chat consumer stopped")

	return ctx.Err()
}

func (s *chatService) consume(ctx context.Context, ch <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			// failures are logged by the negotiator; one bad event must not stop the loop
			rec, err := s.negotiator.ApplyRemote(ctx, ev)
			if err == nil && ev.Kind != transport.KindNewMessage {
				metrics.RecordNegotiation(string(rec.Status), "remote")
			}
		}
	}
}

func (s *chatService) local(rec negotiation.Record, err error) (*models.ChatResponse, error) {
	if err != nil {
		countTransportFailure(err)
		return nil, err
	}

	metrics.RecordNegotiation(string(rec.Status), "local")

	return chatView(rec), nil
}

// onTerminal archives a closed thread and fans the outcome out to the cart,
// the event stream and the counterparty's inbox. Each step fails on its own.
func (s *chatService) onTerminal(ctx context.Context, rec negotiation.Record) {
	logger := middleware.LoggerFromContext(ctx).With(
		slog.String("threadId", rec.ID),
		slog.String("status", string(rec.Status)))

	if err := s.archive.Save(ctx, rec); err != nil {
		logger.Error("Failed to archive negotiation, keeping it in memory", slog.String("error", err.Error()))
	} else {
		s.negotiator.Forget(rec.ID)
	}

	eventType := events.DealRejected

	if agreed, ok := rec.AgreedPrice(); ok {
		eventType = events.DealAccepted

		if err := s.carts.ApplyNegotiatedPrice(ctx, rec.BuyerID, rec.ProductID, rec.OriginalPrice, agreed); err != nil {
			logger.Error("Failed to apply negotiated price to cart", slog.String("error", err.Error()))
		}

		s.notifyDeal(ctx, logger, rec, agreed)
	}

	if err := s.publisher.Publish(ctx, events.New(eventType, rec.ID, rec)); err != nil {
		logger.Error("Failed to publish deal event", slog.String("error", err.Error()))
	}
}

// notifyDeal emails every participant with a known address except the one who
// accepted. Remote acceptances carry no local actor, so both sides qualify.
func (s *chatService) notifyDeal(ctx context.Context, logger *slog.Logger, rec negotiation.Record, agreed decimal.Decimal) {
	if s.email == nil {
		return
	}

	var actor string
	if claims, ok := middleware.ClaimsFromContext(ctx); ok {
		actor = claims.UserID
	}

	price := pricing.FormatDecimal(agreed)

	for _, userID := range []string{rec.BuyerID, rec.FarmerID} {
		if userID == actor {
			continue
		}

		to, ok := s.contacts.Load(userID)
		if !ok {
			continue
		}

		req := &models.EmailNotificationRequest{
			To:          to.(string),
			Subject:     "Deal accepted at " + price,
			Content:     fmt.Sprintf("The negotiation for product %s closed at %s (listed at %s).", rec.ProductID, price, pricing.FormatDecimal(rec.OriginalPrice)),
			HTMLContent: fmt.Sprintf("<p>The negotiation for product <strong>%s</strong> closed at <strong>%s</strong>.</p>", html.EscapeString(rec.ProductID), price),
		}

		if err := s.email.Send(ctx, req); err != nil {
			logger.Warn("Failed to send deal notification", slog.String("userId", userID), slog.String("error", err.Error()))
		}
	}
}

// archived lets the negotiator recognise threads closed by an earlier process.
func (s *chatService) archived(ctx context.Context, id string) (negotiation.Record, bool, error) {
	rec, err := s.archive.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNegotiationNotFound) {
		return negotiation.Record{}, false, nil
	}
	if err != nil {
		return negotiation.Record{}, false, err
	}

	return *rec, true, nil
}

func (s *chatService) remember(ctx context.Context) {
	if claims, ok := middleware.ClaimsFromContext(ctx); ok && claims.Email != "" {
		s.contacts.Store(claims.UserID, claims.Email)
	}
}

func countTransportFailure(err error) {
	if appErr, ok := appErrors.IsAppError(err); ok && appErr.Code == appErrors.ErrCodeTransportError {
		metrics.RecordTransportFailure()
	}
}

func chatView(rec negotiation.Record) *models.ChatResponse {
	offers := make([]models.OfferView, 0, len(rec.Offers))
	for _, o := range rec.Offers {
		offers = append(offers, offerView(o))
	}

	messages := make([]models.ChatMessage, 0, len(rec.Messages))
	for _, m := range rec.Messages {
		messages = append(messages, models.ChatMessage{
			ChatID:    rec.ID,
			Content:   m.Content,
			SenderID:  m.SenderID,
			Timestamp: m.Timestamp,
		})
	}

	resp := &models.ChatResponse{
		ID:            rec.ID,
		ProductID:     rec.ProductID,
		BuyerID:       rec.BuyerID,
		FarmerID:      rec.FarmerID,
		OriginalPrice: rec.OriginalPrice,
		Status:        string(rec.Status),
		Offers:        offers,
		Messages:      messages,
		CreatedAt:     rec.CreatedAt,
	}

	if _, ok := rec.CurrentOffer(); ok {
		current := offers[len(offers)-1]
		resp.CurrentOffer = &current
	}

	return resp
}

func offerView(o negotiation.Offer) models.OfferView {
	return models.OfferView{
		Amount:    o.Amount,
		Display:   pricing.FormatDecimal(o.Amount),
		Proposer:  o.Proposer,
		Timestamp: o.Timestamp,
	}
}
