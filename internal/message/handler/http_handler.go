// Package handler is the fallback request/response channel: plain HTTP used
// when a client has no live push connection. It shares the delivery router so
// an online recipient still gets a live receive_message for a fallback send.
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"gochat/internal/common"
	"gochat/internal/delivery"
	"gochat/internal/message/service"
)

type MessageHandler struct {
	svc    service.MessageService
	router *delivery.Router
}

func NewMessageHandler(svc service.MessageService, router *delivery.Router) *MessageHandler {
	return &MessageHandler{svc: svc, router: router}
}

// RegisterRoutes mounts the fallback API on the given mux router.
func (h *MessageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/messages", h.GetMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages", h.DeleteConversation).Methods(http.MethodDelete)
	r.HandleFunc("/messages/send/{userId}", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/users", h.GetPeers).Methods(http.MethodGet)
}

type apiResponse struct {
	Success  bool              `json:"success"`
	Message  *common.Message   `json:"message,omitempty"`
	Messages []*common.Message `json:"messages,omitempty"`
	Users    []string          `json:"users,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type sendRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// GetMessages handles GET /messages?senderId=&receiverId=, ordered by
// createdAt ascending.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	senderID := r.URL.Query().Get("senderId")
	receiverID := r.URL.Query().Get("receiverId")

	messages, err := h.svc.History(r.Context(), senderID, receiverID)
	if err != nil {
		writeError(w, err)
		return
	}

	wireMessages := make([]*common.Message, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, common.MessageFromModel(m))
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Messages: wireMessages})
}

// SendMessage handles POST /messages/send/{userId}. The path segment names
// the sender; the body carries the full triple for parity with the push
// channel's send_message payload.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := mux.Vars(r)["userId"]

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.NewValidationError("invalid request body"))
		return
	}
	if req.SenderID != "" {
		senderID = req.SenderID
	}

	msg, err := h.router.Deliver(r.Context(), senderID, req.ReceiverID, req.Content, "")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: common.MessageFromModel(msg)})
}

// GetPeers handles GET /messages/users?currentUserId=.
func (h *MessageHandler) GetPeers(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("currentUserId")

	peers, err := h.svc.Peers(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if peers == nil {
		peers = []string{}
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Users: peers})
}

// DeleteConversation handles DELETE /messages?senderId=&receiverId=, the bulk
// delete contract owned by external collaborators.
func (h *MessageHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	senderID := r.URL.Query().Get("senderId")
	receiverID := r.URL.Query().Get("receiverId")

	if err := h.svc.DeleteConversation(r.Context(), senderID, receiverID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("handler: write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), apiResponse{Success: false, Error: err.Error()})
}
