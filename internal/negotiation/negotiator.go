package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/transport"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

var (
	ErrThreadNotFound = errors.New("negotiation thread not found")
	ErrThreadExists   = errors.New("negotiation thread already exists")
	ErrNotParticipant = errors.New("user is not a participant of the negotiation")
	ErrEmptyMessage   = errors.New("message content is empty")
)

// remoteProposer marks offers that arrived with a terminal event and carry no author.
const remoteProposer = "remote"

// TerminalHook runs after a thread reaches accepted or rejected, outside any lock.
type TerminalHook func(ctx context.Context, r Record)

type Option func(*Negotiator)

func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

func WithTerminalHook(h TerminalHook) Option {
	return func(n *Negotiator) { n.hooks = append(n.hooks, h) }
}

// ArchiveLookup resolves a thread that was closed and dropped from memory,
// reporting false when the id was never archived.
type ArchiveLookup func(ctx context.Context, id string) (Record, bool, error)

// WithArchive makes ids of archived threads stay closed after a restart.
func WithArchive(lookup ArchiveLookup) Option {
	return func(n *Negotiator) { n.archive = lookup }
}

type entry struct {
	mu     sync.Mutex
	thread *Thread
}

// tombstone is what remains of a forgotten terminal thread.
type tombstone struct {
	status   Status
	buyerID  string
	farmerID string
}

// Negotiator owns this side's replica of every open negotiation. Local
// transitions are committed first and then mirrored to the transport; a
// transition that cannot be sent is rolled back.
type Negotiator struct {
	mu         sync.RWMutex
	threads    map[string]*entry
	tombstones map[string]tombstone

	archive   ArchiveLookup
	transport transport.Adapter
	sanitizer *bluemonday.Policy
	now       func() time.Time
	hooks     []TerminalHook
}

func NewNegotiator(adapter transport.Adapter, opts ...Option) *Negotiator {
	n := &Negotiator{
		threads:    make(map[string]*entry),
		tombstones: make(map[string]tombstone),
		transport:  adapter,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

type OpenParams struct {
	ID            string
	ProductID     string
	BuyerID       string
	FarmerID      string
	OriginalPrice decimal.Decimal
}

func (n *Negotiator) Open(ctx context.Context, p OpenParams) (Record, error) {
	if p.ProductID == "" || p.BuyerID == "" || p.FarmerID == "" {
		return Record{}, appErrors.ValidationError("Product, buyer and farmer are required")
	}

	if !p.OriginalPrice.IsPositive() {
		return Record{}, appErrors.ValidationError("Original price must be positive").WithError(ErrInvalidAmount)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if n.archive != nil {
		// closed ids are never reopened, a new negotiation needs a new id
		_, archived, err := n.archive(ctx, p.ID)
		if err != nil {
			return Record{}, appErrors.DatabaseError("Failed to check negotiation history").WithError(err)
		}
		if archived {
			return Record{}, appErrors.StateConflictError("Negotiation already exists").WithError(ErrThreadExists)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	_, live := n.threads[p.ID]
	_, forgotten := n.tombstones[p.ID]
	if live || forgotten {
		return Record{}, appErrors.StateConflictError("Negotiation already exists").WithError(ErrThreadExists)
	}

	t := NewThread(p.ID, p.ProductID, p.BuyerID, p.FarmerID, p.OriginalPrice, n.now())
	n.threads[p.ID] = &entry{thread: t}

	middleware.LoggerFromContext(ctx).Info("Negotiation opened",
		slog.String("threadId", p.ID),
		slog.String("productId", p.ProductID))

	return t.Record(), nil
}

// Get returns a thread held in memory. Archived threads are not consulted.
func (n *Negotiator) Get(id string) (Record, error) {
	n.mu.RLock()
	e, ok := n.threads[id]
	n.mu.RUnlock()
	if !ok {
		return Record{}, notFound()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.thread.Record(), nil
}

// ListByParticipant returns the live threads the user takes part in.
func (n *Negotiator) ListByParticipant(userID string) []Record {
	n.mu.RLock()
	entries := make([]*entry, 0, len(n.threads))
	for _, e := range n.threads {
		entries = append(entries, e)
	}
	n.mu.RUnlock()

	var out []Record
	for _, e := range entries {
		e.mu.Lock()
		if e.thread.BuyerID == userID || e.thread.FarmerID == userID {
			out = append(out, e.thread.Record())
		}
		e.mu.Unlock()
	}

	return out
}

// Forget drops a thread from memory, typically after it has been archived.
// A terminal thread leaves a tombstone so its id keeps failing as closed.
func (n *Negotiator) Forget(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.threads[id]
	if !ok {
		return
	}

	e.mu.Lock()
	t := e.thread
	if t.status.Terminal() {
		n.tombstones[id] = tombstone{status: t.status, buyerID: t.BuyerID, farmerID: t.FarmerID}
	}
	e.mu.Unlock()

	delete(n.threads, id)
}

func (n *Negotiator) Propose(ctx context.Context, id string, amount decimal.Decimal, proposer string) (Record, error) {
	return n.transition(ctx, id, proposer, func(t *Thread) (transport.EventKind, any, error) {
		if err := t.Propose(amount, proposer, n.now()); err != nil {
			return "", nil, err
		}

		return transport.KindSendOffer, models.SendOfferPayload{
			ChatID: t.ID,
			Offer:  models.OfferBody{Price: amount, ProductID: t.ProductID},
		}, nil
	})
}

func (n *Negotiator) Accept(ctx context.Context, id string, actor string) (Record, error) {
	return n.transition(ctx, id, actor, func(t *Thread) (transport.EventKind, any, error) {
		if err := t.Accept(); err != nil {
			return "", nil, err
		}

		return transport.KindAcceptDeal, models.DealPayload{ChatID: t.ID}, nil
	})
}

func (n *Negotiator) Reject(ctx context.Context, id string, actor string) (Record, error) {
	return n.transition(ctx, id, actor, func(t *Thread) (transport.EventKind, any, error) {
		if err := t.Reject(); err != nil {
			return "", nil, err
		}

		return transport.KindRejectDeal, models.DealPayload{ChatID: t.ID}, nil
	})
}

func (n *Negotiator) SendMessage(ctx context.Context, id string, sender string, content string) (Record, error) {
	clean := strings.TrimSpace(n.sanitizer.Sanitize(content))
	if clean == "" {
		return Record{}, appErrors.ValidationError("Message content cannot be empty").WithError(ErrEmptyMessage)
	}

	return n.transition(ctx, id, sender, func(t *Thread) (transport.EventKind, any, error) {
		msg := Message{Content: clean, SenderID: sender, Timestamp: n.now()}
		if err := t.AddMessage(msg); err != nil {
			return "", nil, err
		}

		return transport.KindSendMessage, models.SendMessagePayload{
			ChatID: t.ID,
			Message: models.ChatMessage{
				Content:   msg.Content,
				SenderID:  msg.SenderID,
				Timestamp: msg.Timestamp,
			},
		}, nil
	})
}

type mutation func(t *Thread) (transport.EventKind, any, error)

func (n *Negotiator) transition(ctx context.Context, id string, actor string, apply mutation) (Record, error) {
	logger := middleware.LoggerFromContext(ctx).With(slog.String("threadId", id))

	e, err := n.lookup(ctx, id, actor)
	if err != nil {
		n.logFailure(logger, err)
		return Record{}, err
	}

	e.mu.Lock()

	t := e.thread
	if actor != t.BuyerID && actor != t.FarmerID {
		e.mu.Unlock()
		return Record{}, appErrors.ForbiddenError("Only the buyer or the farmer can act on this negotiation").WithError(ErrNotParticipant)
	}

	wasTerminal := t.status.Terminal()
	cp := t.checkpoint()

	kind, payload, err := apply(t)
	if err != nil {
		e.mu.Unlock()
		n.logFailure(logger, err)
		return Record{}, err
	}

	if err := n.transport.Send(ctx, kind, payload); err != nil {
		t.rollback(cp)
		e.mu.Unlock()
		logger.Warn("Failed to deliver negotiation event, transition rolled back",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return Record{}, appErrors.TransportError("Could not reach the chat service, please try again").WithError(err)
	}

	rec := t.Record()
	e.mu.Unlock()

	logger.Info("Negotiation updated", slog.String("kind", string(kind)), slog.String("status", string(rec.Status)))

	if !wasTerminal && rec.Status.Terminal() {
		n.fireTerminal(ctx, rec)
	}

	return rec, nil
}

// ApplyRemote folds an inbound event from the counterparty into the local
// replica. Offers are appended in arrival order; terminal events apply once.
func (n *Negotiator) ApplyRemote(ctx context.Context, ev transport.Event) (Record, error) {
	logger := middleware.LoggerFromContext(ctx).With(slog.String("kind", string(ev.Kind)))

	switch ev.Kind {
	case transport.KindOfferUpdate:
		var p models.OfferUpdateEvent
		if err := ev.Decode(&p); err != nil {
			return Record{}, appErrors.BadRequestError("Malformed offer update").WithError(err)
		}

		return n.applyRemote(ctx, logger, p.ChatID, func(t *Thread) error {
			return t.Propose(p.Offer.Price, p.From, n.now())
		})

	case transport.KindDealStatus:
		var p models.DealStatusEvent
		if err := ev.Decode(&p); err != nil {
			return Record{}, appErrors.BadRequestError("Malformed deal status").WithError(err)
		}

		return n.applyRemote(ctx, logger, p.ChatID, func(t *Thread) error {
			switch Status(p.Status) {
			case StatusAccepted:
				if t.status.Terminal() {
					return closed(t)
				}
				// the terminal event is authoritative for the agreed price
				if p.Offer != nil {
					if cur, ok := t.CurrentOffer(); !ok || !cur.Equal(p.Offer.Price) {
						if err := t.Propose(p.Offer.Price, remoteProposer, n.now()); err != nil {
							return err
						}
					}
				}
				return t.Accept()
			case StatusRejected:
				return t.Reject()
			default:
				return appErrors.BadRequestError("Unknown deal status: " + p.Status)
			}
		})

	case transport.KindNewMessage:
		var p models.NewMessageEvent
		if err := ev.Decode(&p); err != nil {
			return Record{}, appErrors.BadRequestError("Malformed chat message").WithError(err)
		}

		return n.applyRemote(ctx, logger, p.Message.ChatID, func(t *Thread) error {
			clean := strings.TrimSpace(n.sanitizer.Sanitize(p.Message.Content))
			if clean == "" {
				return appErrors.ValidationError("Message content cannot be empty").WithError(ErrEmptyMessage)
			}

			ts := p.Message.Timestamp
			if ts.IsZero() {
				ts = n.now()
			}

			return t.AddMessage(Message{Content: clean, SenderID: p.Message.SenderID, Timestamp: ts})
		})

	default:
		return Record{}, appErrors.BadRequestError("Unsupported event kind: " + string(ev.Kind))
	}
}

func (n *Negotiator) applyRemote(ctx context.Context, logger *slog.Logger, id string, apply func(t *Thread) error) (Record, error) {
	e, err := n.lookup(ctx, id, "")
	if err != nil {
		n.logFailure(logger.With(slog.String("threadId", id)), err)
		return Record{}, err
	}

	e.mu.Lock()

	t := e.thread
	wasTerminal := t.status.Terminal()
	cp := t.checkpoint()

	if err := apply(t); err != nil {
		t.rollback(cp)
		e.mu.Unlock()
		n.logFailure(logger.With(slog.String("threadId", id)), err)
		return Record{}, err
	}

	rec := t.Record()
	e.mu.Unlock()

	if !wasTerminal && rec.Status.Terminal() {
		n.fireTerminal(ctx, rec)
	}

	return rec, nil
}

// lookup finds a live thread. Forgotten and archived ids fail as closed so a
// terminal outcome stays final. An empty actor skips the participant check.
func (n *Negotiator) lookup(ctx context.Context, id string, actor string) (*entry, error) {
	n.mu.RLock()
	e, live := n.threads[id]
	ts, forgotten := n.tombstones[id]
	n.mu.RUnlock()

	if live {
		return e, nil
	}

	if !forgotten && n.archive != nil {
		rec, archived, err := n.archive(ctx, id)
		if err != nil {
			return nil, appErrors.DatabaseError("Failed to load negotiation").WithError(err)
		}
		if archived {
			ts, forgotten = tombstone{status: rec.Status, buyerID: rec.BuyerID, farmerID: rec.FarmerID}, true
		}
	}

	if !forgotten {
		return nil, notFound()
	}

	if actor != "" && actor != ts.buyerID && actor != ts.farmerID {
		return nil, appErrors.ForbiddenError("Only the buyer or the farmer can act on this negotiation").WithError(ErrNotParticipant)
	}

	return nil, closedError(id, ts.status)
}

func notFound() *appErrors.AppError {
	return appErrors.NotFoundError("Negotiation not found").WithError(ErrThreadNotFound)
}

func (n *Negotiator) fireTerminal(ctx context.Context, rec Record) {
	for _, h := range n.hooks {
		h(ctx, rec)
	}
}

// State conflicts mean the caller let a user act on a closed negotiation;
// they are logged at error level, everything else is ordinary input.
func (n *Negotiator) logFailure(logger *slog.Logger, err error) {
	if errors.Is(err, ErrThreadClosed) {
		logger.Error("Transition attempted on closed negotiation", slog.String("error", err.Error()))
		return
	}

	logger.Warn("Negotiation transition rejected", slog.String("error", err.Error()))
}
