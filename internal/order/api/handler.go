package api

import (
	"encoding/json"
	"net/http"

	"ms-grouporder/internal/auth"
	"ms-grouporder/internal/order"
	"ms-grouporder/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.Service
}

func writeJSON(w http.ResponseWriter, status int, payload utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, utils.ErrorStatus(err), utils.ErrorResponse(message, err.Error()))
}

// MyOrder returns the caller's cart for this group.
func (h *Handler) MyOrder(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	o, err := h.OrderService.MyOrder(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, "Could not load order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("order", o))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	var req order.AddItemParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.OrderService.AddItem(r.Context(), groupID, userID, req)
	if err != nil {
		writeError(w, "Could not add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("item added", o))
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	lineID := chi.URLParam(r, "lineId")
	userID := auth.UserID(r.Context())

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.OrderService.SetQuantity(r.Context(), groupID, userID, lineID, req.Quantity); err != nil {
		writeError(w, "Could not update quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("quantity updated", nil))
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	lineID := chi.URLParam(r, "lineId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.RemoveLine(r.Context(), groupID, userID, lineID); err != nil {
		writeError(w, "Could not remove item", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("item removed", nil))
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.Clear(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not clear order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("order cleared", nil))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.Submit(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not submit order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("order submitted", nil))
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.Edit(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not reopen order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("order reopened for editing", nil))
}

func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.CancelEdit(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not cancel edit", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("edit cancelled, order restored", nil))
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	lineID := chi.URLParam(r, "lineId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.FollowLine(r.Context(), groupID, userID, lineID); err != nil {
		writeError(w, "Could not follow item", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("item followed", nil))
}

func (h *Handler) CopyLast(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.OrderService.CopyLast(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not copy last order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("last order copied", nil))
}
