package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ms-grouporder/internal/auth"
	"ms-grouporder/internal/export"
	"ms-grouporder/internal/group"
	"ms-grouporder/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	GroupService *group.Service
	// BaseURL is the public origin used for share links and QR codes.
	BaseURL string
}

func writeJSON(w http.ResponseWriter, status int, payload utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, utils.ErrorStatus(err), utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req group.CreateGroupParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.GroupService.Create(r.Context(), userID, req)
	if err != nil {
		writeError(w, "Could not create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("group created", g))
}

// Get returns the group with its recomputed settlement. Viewing an expired
// group is one of the lucky-draw triggers.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	view, err := h.GroupService.GetView(r.Context(), groupID)
	if err != nil {
		writeError(w, "Could not load group", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("group", view))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.GroupService.Close(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not close group", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("group closed", nil))
}

// Update applies owner edits. Name, note and deadline are accepted even when
// the group is closed; a delivery fee change goes through the gated path.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	var req struct {
		group.UpdateInfoParams
		DeliveryFee *decimal.Decimal `json:"delivery_fee,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name != nil || req.Note != nil || req.Deadline != nil {
		if err := h.GroupService.UpdateInfo(r.Context(), groupID, userID, req.UpdateInfoParams); err != nil {
			writeError(w, "Could not update group", err)
			return
		}
	}
	if req.DeliveryFee != nil {
		fee := decimal.NullDecimal{Decimal: *req.DeliveryFee, Valid: true}
		if err := h.GroupService.SetDeliveryFee(r.Context(), groupID, userID, fee); err != nil {
			writeError(w, "Could not update delivery fee", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("group updated", nil))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	var req struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.NewOwnerID == "" {
		http.Error(w, "new_owner_id cannot be empty", http.StatusBadRequest)
		return
	}

	if err := h.GroupService.Transfer(r.Context(), groupID, userID, req.NewOwnerID); err != nil {
		writeError(w, "Could not transfer group", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("group transferred", nil))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.GroupService.Delete(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not delete group", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("group deleted", nil))
}

func (h *Handler) DeclareTreat(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	var req struct {
		Note string `json:"note,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	record, err := h.GroupService.DeclareTreat(r.Context(), groupID, userID, req.Note)
	if err != nil {
		writeError(w, "Could not declare treat", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("treat declared", record))
}

func (h *Handler) CancelTreat(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	userID := auth.UserID(r.Context())

	if err := h.GroupService.CancelTreat(r.Context(), groupID, userID); err != nil {
		writeError(w, "Could not cancel treat", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("treat cancelled", nil))
}

// TreatLeaderboard returns a store's top payers ranked by total treated amount.
func (h *Handler) TreatLeaderboard(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.GroupService.TreatLeaderboard(r.Context(), storeID, limit)
	if err != nil {
		writeError(w, "Could not load treat leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("treat leaderboard", entries))
}

// ExportOrder renders the store-facing consolidated order text.
func (h *Handler) ExportOrder(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	view, err := h.GroupService.GetView(r.Context(), groupID)
	if err != nil {
		writeError(w, "Could not load group", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(export.OrderText(&view.Group, view.Settlement)))
}

// ExportPayment renders the payer-facing settlement text.
func (h *Handler) ExportPayment(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	view, err := h.GroupService.GetView(r.Context(), groupID)
	if err != nil {
		writeError(w, "Could not load group", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(export.PaymentText(&view.Group, view.Settlement)))
}

// QRCode renders the group's share link as a PNG.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	if _, err := h.GroupService.GetView(r.Context(), groupID); err != nil {
		writeError(w, "Could not load group", err)
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 2048 {
			size = n
		}
	}

	png, err := export.GroupQR(h.BaseURL, groupID, size)
	if err != nil {
		writeError(w, "Could not render QR code", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
