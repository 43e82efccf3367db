package handlers

import (
	"log/slog"
	"net/http"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
	"github.com/go-playground/validator/v10"
)

type ChatHandler struct {
	chatService service.ChatService
	validator   *validator.Validate
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService, validator: validator.New()}
}

func (h *ChatHandler) OpenChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req models.OpenChatRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		chat, err := h.chatService.OpenChat(r.Context(), claims.UserID, &req)
		if err != nil {
			logger.Warn("Failed to open negotiation", slog.String("productId", req.ProductID), slog.String("error", err.Error()))
			response.Error(w, err)
			return
		}

		logger.Info("Negotiation opened", slog.String("chatId", chat.ID))
		response.Success(w, http.StatusCreated, chat)
	}
}

func (h *ChatHandler) ListChats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chats, err := h.chatService.ListChats(r.Context(), claims.UserID)
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to list negotiations", slog.String("error", err.Error()))
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, chats)
	}
}

func (h *ChatHandler) GetChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chatID, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		chat, err := h.chatService.GetChat(r.Context(), claims.UserID, chatID)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, chat)
	}
}

func (h *ChatHandler) ProposeOffer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chatID, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		var req models.ProposeOfferRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		chat, err := h.chatService.ProposeOffer(r.Context(), claims.UserID, chatID, req.Amount)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, chat)
	}
}

func (h *ChatHandler) AcceptDeal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chatID, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		chat, err := h.chatService.AcceptDeal(r.Context(), claims.UserID, chatID)
		if err != nil {
			response.Error(w, err)
			return
		}

		middleware.LoggerFromContext(r.Context()).Info("Deal accepted", slog.String("chatId", chatID))
		response.Success(w, http.StatusOK, chat)
	}
}

func (h *ChatHandler) RejectDeal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chatID, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		chat, err := h.chatService.RejectDeal(r.Context(), claims.UserID, chatID)
		if err != nil {
			response.Error(w, err)
			return
		}

		middleware.LoggerFromContext(r.Context()).Info("Deal rejected", slog.String("chatId", chatID))
		response.Success(w, http.StatusOK, chat)
	}
}

func (h *ChatHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		chatID, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		var req models.SendMessageRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		chat, err := h.chatService.SendMessage(r.Context(), claims.UserID, chatID, req.Content)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusCreated, chat)
	}
}
