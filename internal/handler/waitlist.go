package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/repository"
	"github.com/newronx/waitlist/internal/service"
)

// WaitlistHandler exposes the signup and waitlist-maintenance endpoints.
type WaitlistHandler struct {
	signup   *service.SignupService
	waitlist *service.WaitlistService
	logger   *slog.Logger
}

func NewWaitlistHandler(signup *service.SignupService, waitlist *service.WaitlistService, logger *slog.Logger) *WaitlistHandler {
	return &WaitlistHandler{signup: signup, waitlist: waitlist, logger: logger}
}

// signupRequest is the manual-form payload.
type signupRequest struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referralCode"`
}

// registrantPayload is the signup-response projection of a registrant.
type registrantPayload struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone,omitempty"`
	Name         string           `json:"name,omitempty"`
	Picture      string           `json:"picture,omitempty"`
	Source       model.Source     `json:"source"`
	ReferralCode string           `json:"referralCode"`
	JoinedAt     string           `json:"joinedAt"`
}

func newRegistrantPayload(reg *model.Registrant) registrantPayload {
	p := registrantPayload{
		ID:           reg.ID,
		Email:        reg.Email,
		Phone:        reg.Phone,
		Source:       reg.Source,
		ReferralCode: reg.ReferralCode,
		JoinedAt:     reg.JoinedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if reg.Profile != nil {
		p.Name = reg.Profile.Name
		p.Picture = reg.Profile.Picture
	}
	return p
}

func newReferralOutcome(result *service.SignupResult) referralOutcome {
	out := referralOutcome{}
	switch {
	case result.ReferralErr != nil:
		var appErr *apperror.AppError
		if errors.As(result.ReferralErr, &appErr) {
			out.Error = appErr.Message
		} else {
			out.Error = "referral attribution failed"
		}
	case result.Referrer != nil:
		out.Applied = true
		out.Referrer = &referrerPayload{
			ID:    result.Referrer.ID,
			Email: result.Referrer.Email,
			Name:  result.Referrer.DisplayName(),
		}
	}
	return out
}

// HandleSignup processes a manual signup.
//
// HTTP: POST /api/waitlist
// BODY: {"email": "...", "phone": "...", "referralCode": "AB12C3"}
//
// A bad referral code does not fail the signup: the registrant is created
// and the rejection is reported in the referral section of the 201 body.
// A duplicate email is 409 with the existing record's public summary.
func (h *WaitlistHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.signup.ManualSignup(r.Context(), req.Email, req.Phone, req.ReferralCode)
	if err != nil {
		var already *service.AlreadyRegisteredError
		if errors.As(err, &already) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success":      false,
				"error":        "already_registered",
				"message":      "Email already exists in waitlist",
				"existingUser": already.Existing.Summarize(),
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "Successfully added to waitlist!",
		"user":     newRegistrantPayload(result.Registrant),
		"referral": newReferralOutcome(result),
	})
}

// HandleStats returns the aggregate signup counts.
//
// HTTP: GET /api/waitlist/stats
func (h *WaitlistHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.waitlist.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// HandleList returns active registrants, newest first.
//
// HTTP: GET /api/waitlist?page=1&limit=50&source=manual
func (h *WaitlistHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	opts := repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
		Source: model.Source(r.URL.Query().Get("source")),
	}

	regs, total, err := h.waitlist.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   regs,
		"pagination": map[string]any{
			"currentPage": page,
			"totalPages":  totalPages,
			"totalUsers":  total,
			"hasNext":     page*limit < total,
			"hasPrev":     page > 1,
		},
	})
}

// HandleGetByID returns one registrant, deactivated or not.
//
// HTTP: GET /api/waitlist/{id}
func (h *WaitlistHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	reg, err := h.waitlist.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": reg})
}

// HandleCheckEmail reports whether an email is on the waitlist.
//
// HTTP: GET /api/waitlist/email/{email}
func (h *WaitlistHandler) HandleCheckEmail(w http.ResponseWriter, r *http.Request) {
	reg, err := h.waitlist.GetByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"exists": false})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":   true,
		"source":   reg.Source,
		"joinedAt": reg.JoinedAt,
	})
}

type phoneUpdateRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// HandleUpdatePhone patches a registrant's phone by id.
//
// HTTP: PUT /api/waitlist/{id}/phone
func (h *WaitlistHandler) HandleUpdatePhone(w http.ResponseWriter, r *http.Request) {
	var req phoneUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	reg, err := h.waitlist.UpdatePhone(r.Context(), r.PathValue("id"), req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Phone number updated successfully",
		"user":    newRegistrantPayload(reg),
	})
}

// HandleUpdatePhoneByEmail patches a registrant's phone by email — how a
// Google-created account supplies a phone after the fact.
//
// HTTP: PUT /api/waitlist/phone
func (h *WaitlistHandler) HandleUpdatePhoneByEmail(w http.ResponseWriter, r *http.Request) {
	var req phoneUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	reg, err := h.waitlist.UpdatePhoneByEmail(r.Context(), req.Email, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Phone number updated successfully",
		"user":    newRegistrantPayload(reg),
	})
}

// HandleRemove soft-deletes a registrant.
//
// HTTP: DELETE /api/waitlist/{id}
func (h *WaitlistHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.waitlist.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User removed from waitlist successfully",
	})
}
