package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/events"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/negotiation"
	repository "github.com/aaravmahajanofficial/agri-marketplace/internal/repositories"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/services/mocks"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// notifyingAdapter reports each subscription so tests can wait for Run.
type notifyingAdapter struct {
	*transport.MemoryAdapter
	subscribed chan transport.EventKind
}

func (a *notifyingAdapter) Subscribe(ctx context.Context, kind transport.EventKind) (<-chan transport.Event, error) {
	ch, err := a.MemoryAdapter.Subscribe(ctx, kind)
	if err == nil {
		a.subscribed <- kind
	}
	return ch, err
}

type chatFixture struct {
	adapter   *notifyingAdapter
	archive   *mocks.MockNegotiationArchive
	email     *mocks.MockEmailService
	publisher *mocks.MockPublisher
	carts     service.CartService
	chats     service.ChatService
}

func setupChatService(t *testing.T) chatFixture {
	c, _ := setupRedisCache(t)

	f := chatFixture{
		adapter: &notifyingAdapter{
			MemoryAdapter: transport.NewMemoryAdapter(16),
			subscribed:    make(chan transport.EventKind, 3),
		},
		archive:   mocks.NewMockNegotiationArchive(t),
		email:     mocks.NewMockEmailService(t),
		publisher: mocks.NewMockPublisher(t),
		carts:     service.NewCartService(c, mocks.NewMockProductService(t), feeRate, time.Hour),
	}
	f.chats = service.NewChatService(f.adapter, f.archive, f.carts, f.email, f.publisher)
	t.Cleanup(func() { _ = f.adapter.Close() })

	return f
}

func asUser(ctx context.Context, userID string) context.Context {
	claims := &models.Claims{UserID: userID, Email: userID + "@example.com"}
	return context.WithValue(ctx, middleware.UserContextKey, claims)
}

func openTomatoChat(t *testing.T, f chatFixture, opener string) *models.ChatResponse {
	f.archive.On("GetByID", mock.Anything, "chat-1").Return(nil, repository.ErrNegotiationNotFound).Once()

	chat, err := f.chats.OpenChat(asUser(t.Context(), opener), opener, &models.OpenChatRequest{
		ChatID:        "chat-1",
		ProductID:     "tomato-1",
		BuyerID:       "buyer-1",
		FarmerID:      "farmer-1",
		OriginalPrice: rs(600),
	})
	require.NoError(t, err)

	return chat
}

func statusRecord(status negotiation.Status) any {
	return mock.MatchedBy(func(rec negotiation.Record) bool { return rec.ID == "chat-1" && rec.Status == status })
}

func TestChatService_DealAccepted(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	buyer := asUser(t.Context(), "buyer-1")
	farmer := asUser(t.Context(), "farmer-1")

	chat := openTomatoChat(t, f, "farmer-1")
	assert.Equal(t, "ongoing", chat.Status)
	assert.Nil(t, chat.CurrentOffer)

	f.archive.On("Save", mock.Anything, statusRecord(negotiation.StatusAccepted)).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, eventOfType(events.DealAccepted)).Return(nil).Once()
	f.email.On("Send", mock.Anything, mock.MatchedBy(func(req *models.EmailNotificationRequest) bool {
		return req.To == "farmer-1@example.com" && strings.Contains(req.Subject, "₹550.00")
	})).Return(nil).Once()

	// Act
	_, err := f.chats.ProposeOffer(buyer, "buyer-1", "chat-1", rs(500))
	require.NoError(t, err)
	chat, err = f.chats.ProposeOffer(farmer, "farmer-1", "chat-1", rs(550))
	require.NoError(t, err)
	require.NotNil(t, chat.CurrentOffer)
	assert.Equal(t, "₹550.00", chat.CurrentOffer.Display)

	chat, err = f.chats.AcceptDeal(buyer, "buyer-1", "chat-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "accepted", chat.Status)
	assert.Len(t, chat.Offers, 2)

	cart, err := f.carts.GetCart(t.Context(), "buyer-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "tomato-1", cart.Items[0].ProductID)
	assert.True(t, rs(600).Equal(cart.Items[0].UnitPrice))
	assert.True(t, rs(550).Equal(cart.Items[0].EffectivePrice))
}

func TestChatService_ClosedThreadsServedFromArchive(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	buyer := asUser(t.Context(), "buyer-1")
	openTomatoChat(t, f, "buyer-1")

	var archived negotiation.Record
	f.archive.On("Save", mock.Anything, statusRecord(negotiation.StatusRejected)).
		Run(func(args mock.Arguments) { archived = args.Get(1).(negotiation.Record) }).
		Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, eventOfType(events.DealRejected)).Return(nil).Once()

	_, err := f.chats.RejectDeal(buyer, "buyer-1", "chat-1")
	require.NoError(t, err)

	f.archive.On("GetByID", mock.Anything, "chat-1").Return(&archived, nil).Once()

	// Act
	chat, err := f.chats.GetChat(buyer, "buyer-1", "chat-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "rejected", chat.Status)
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestChatService_ArchiveFailureKeepsThreadLive(t *testing.T) {
	f := setupChatService(t)
	farmer := asUser(t.Context(), "farmer-1")
	openTomatoChat(t, f, "farmer-1")

	f.archive.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.chats.RejectDeal(farmer, "farmer-1", "chat-1")
	require.NoError(t, err)

	chat, err := f.chats.GetChat(farmer, "farmer-1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "rejected", chat.Status)
	// only the open consulted the archive
	f.archive.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestChatService_ClosedThreadStaysClosed(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	buyer := asUser(t.Context(), "buyer-1")
	farmer := asUser(t.Context(), "farmer-1")
	openTomatoChat(t, f, "buyer-1")

	var archived negotiation.Record
	f.archive.On("Save", mock.Anything, statusRecord(negotiation.StatusRejected)).
		Run(func(args mock.Arguments) { archived = args.Get(1).(negotiation.Record) }).
		Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, eventOfType(events.DealRejected)).Return(nil).Once()

	_, err := f.chats.RejectDeal(farmer, "farmer-1", "chat-1")
	require.NoError(t, err)

	t.Run("Failure - Propose After Reject", func(t *testing.T) {
		_, err := f.chats.ProposeOffer(buyer, "buyer-1", "chat-1", rs(500))

		assert.ErrorIs(t, err, negotiation.ErrThreadClosed)
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeStateConflict, appErr.Code)
	})

	t.Run("Failure - Accept After Reject", func(t *testing.T) {
		_, err := f.chats.AcceptDeal(buyer, "buyer-1", "chat-1")

		assert.ErrorIs(t, err, negotiation.ErrThreadClosed)
	})

	t.Run("Failure - Message After Reject", func(t *testing.T) {
		_, err := f.chats.SendMessage(buyer, "buyer-1", "chat-1", "any chance now?")

		assert.ErrorIs(t, err, negotiation.ErrThreadClosed)
	})

	t.Run("Failure - Reopen Archived Id", func(t *testing.T) {
		// Arrange
		f.archive.On("GetByID", mock.Anything, "chat-1").Return(&archived, nil).Once()

		// Act
		_, err := f.chats.OpenChat(buyer, "buyer-1", &models.OpenChatRequest{
			ChatID:        "chat-1",
			ProductID:     "tomato-1",
			BuyerID:       "buyer-1",
			FarmerID:      "farmer-1",
			OriginalPrice: rs(600),
		})

		// Assert
		assert.ErrorIs(t, err, negotiation.ErrThreadExists)
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeStateConflict, appErr.Code)
	})

	f.archive.AssertNumberOfCalls(t, "Save", 1)
}

func TestChatService_ArchivedThreadClosedAfterRestart(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	buyer := asUser(t.Context(), "buyer-1")

	archived := negotiation.Record{
		ID: "chat-9", ProductID: "onion-1", BuyerID: "buyer-1", FarmerID: "farmer-2",
		OriginalPrice: rs(30), Status: negotiation.StatusAccepted,
	}
	f.archive.On("GetByID", mock.Anything, "chat-9").Return(&archived, nil)

	// Act
	_, proposeErr := f.chats.ProposeOffer(buyer, "buyer-1", "chat-9", rs(25))
	_, messageErr := f.chats.SendMessage(buyer, "buyer-1", "chat-9", "thanks for the onions")
	_, outsiderErr := f.chats.AcceptDeal(t.Context(), "mallory", "chat-9")

	// Assert
	assert.ErrorIs(t, proposeErr, negotiation.ErrThreadClosed)
	assert.ErrorIs(t, messageErr, negotiation.ErrThreadClosed)
	assert.ErrorIs(t, outsiderErr, negotiation.ErrNotParticipant)
	f.archive.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestChatService_Access(t *testing.T) {
	f := setupChatService(t)
	openTomatoChat(t, f, "buyer-1")

	t.Run("Failure - Open For Someone Else", func(t *testing.T) {
		_, err := f.chats.OpenChat(asUser(t.Context(), "mallory"), "mallory", &models.OpenChatRequest{
			ProductID: "tomato-1", BuyerID: "buyer-1", FarmerID: "farmer-1", OriginalPrice: rs(600),
		})

		assert.ErrorIs(t, err, negotiation.ErrNotParticipant)
	})

	t.Run("Failure - Outsider Reads Thread", func(t *testing.T) {
		_, err := f.chats.GetChat(t.Context(), "mallory", "chat-1")

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeForbidden, appErr.Code)
	})

	t.Run("Failure - Outsider Proposes", func(t *testing.T) {
		_, err := f.chats.ProposeOffer(t.Context(), "mallory", "chat-1", rs(1))

		assert.ErrorIs(t, err, negotiation.ErrNotParticipant)
	})

	t.Run("Failure - Unknown Thread", func(t *testing.T) {
		f.archive.On("GetByID", mock.Anything, "chat-404").Return(nil, repository.ErrNegotiationNotFound).Once()

		_, err := f.chats.GetChat(t.Context(), "buyer-1", "chat-404")

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeNotFound, appErr.Code)
	})

	t.Run("Failure - Archive Unavailable", func(t *testing.T) {
		f.archive.On("GetByID", mock.Anything, "chat-500").Return(nil, errors.New("db down")).Once()

		_, err := f.chats.GetChat(t.Context(), "buyer-1", "chat-500")

		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeDatabaseError, appErr.Code)
	})
}

func TestChatService_TransportDown(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	buyer := asUser(t.Context(), "buyer-1")
	openTomatoChat(t, f, "buyer-1")
	require.NoError(t, f.adapter.Close())

	// Act
	_, err := f.chats.ProposeOffer(buyer, "buyer-1", "chat-1", rs(500))

	// Assert
	appErr, ok := appErrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrCodeTransportError, appErr.Code)

	chat, err := f.chats.GetChat(buyer, "buyer-1", "chat-1")
	require.NoError(t, err)
	assert.Empty(t, chat.Offers, "the failed offer was rolled back")
}

func TestChatService_SendMessage(t *testing.T) {
	f := setupChatService(t)
	openTomatoChat(t, f, "buyer-1")

	chat, err := f.chats.SendMessage(t.Context(), "buyer-1", "chat-1", "Can you deliver to Pune?")

	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "chat-1", chat.Messages[0].ChatID)
	assert.Equal(t, "buyer-1", chat.Messages[0].SenderID)
}

func TestChatService_ListChats(t *testing.T) {
	f := setupChatService(t)
	live := openTomatoChat(t, f, "buyer-1")

	older := negotiation.Record{
		ID: "chat-0", ProductID: "onion-1", BuyerID: "buyer-1", FarmerID: "farmer-2",
		OriginalPrice: rs(30), Status: negotiation.StatusRejected, CreatedAt: live.CreatedAt.Add(-time.Hour),
	}
	duplicate := negotiation.Record{ID: "chat-1", BuyerID: "buyer-1", FarmerID: "farmer-1", Status: negotiation.StatusRejected}
	f.archive.On("ListByParticipant", mock.Anything, "buyer-1", 50).Return([]negotiation.Record{older, duplicate}, nil).Once()

	chats, err := f.chats.ListChats(t.Context(), "buyer-1")

	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-1", chats[0].ID)
	assert.Equal(t, "ongoing", chats[0].Status, "live state wins over the archive")
	assert.Equal(t, "chat-0", chats[1].ID)
}

func TestChatService_RunAppliesRemoteEvents(t *testing.T) {
	// Arrange
	f := setupChatService(t)
	openTomatoChat(t, f, "buyer-1")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- f.chats.Run(ctx) }()

	for range 3 {
		select {
		case <-f.adapter.subscribed:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not subscribe")
		}
	}

	saved := make(chan struct{})
	f.archive.On("Save", mock.Anything, statusRecord(negotiation.StatusAccepted)).
		Run(func(mock.Arguments) { close(saved) }).
		Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, eventOfType(events.DealAccepted)).Return(nil).Once()
	// a remote acceptance has no local actor, so the known buyer is told
	f.email.On("Send", mock.Anything, mock.MatchedBy(func(req *models.EmailNotificationRequest) bool {
		return req.To == "buyer-1@example.com"
	})).Return(nil).Once()

	// Act
	require.NoError(t, f.adapter.Send(t.Context(), transport.KindOfferUpdate, models.OfferUpdateEvent{
		ChatID: "chat-1",
		Offer:  models.OfferBody{Price: rs(580), ProductID: "tomato-1"},
		From:   "farmer-1",
	}))

	require.Eventually(t, func() bool {
		chat, err := f.chats.GetChat(t.Context(), "buyer-1", "chat-1")
		return err == nil && len(chat.Offers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.adapter.Send(t.Context(), transport.KindDealStatus, models.DealStatusEvent{
		ChatID: "chat-1",
		Status: "accepted",
		Offer:  &models.OfferBody{Price: rs(580), ProductID: "tomato-1"},
	}))

	// Assert
	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("accepted thread was not archived")
	}

	require.Eventually(t, func() bool {
		cart, err := f.carts.GetCart(t.Context(), "buyer-1")
		return err == nil && len(cart.Items) == 1 && cart.Items[0].EffectivePrice.Equal(rs(580))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
