package handler

import (
	"log/slog"
	"net/http"

	"github.com/newronx/waitlist/internal/service"
)

// ReferralHandler exposes the referral-program read endpoints.
type ReferralHandler struct {
	waitlist *service.WaitlistService
	logger   *slog.Logger
}

func NewReferralHandler(waitlist *service.WaitlistService, logger *slog.Logger) *ReferralHandler {
	return &ReferralHandler{waitlist: waitlist, logger: logger}
}

// HandleValidate resolves a referral code to its owner's public summary,
// so the signup form can show "Referred by Ada" before the user submits.
//
// HTTP: GET /api/referrals/validate/{code}
func (h *ReferralHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.waitlist.ValidateCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"valid":    true,
		"referrer": summary,
	})
}

// HandleCodeOf returns a registrant's own code and counters, addressed by
// email (the share-your-code widget).
//
// HTTP: GET /api/referrals/code/{email}
func (h *ReferralHandler) HandleCodeOf(w http.ResponseWriter, r *http.Request) {
	reg, err := h.waitlist.ReferralCodeOf(r.Context(), r.PathValue("email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"referralCode":    reg.ReferralCode,
		"referralCount":   reg.ReferralCount,
		"referralRewards": reg.ReferralRewards,
	})
}

// HandleStats returns the referral-program aggregates and leaderboard.
//
// HTTP: GET /api/referrals/stats
func (h *ReferralHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.waitlist.ReferralStats(r.Context())
	if err != nil {
		h.logger.Error("referral stats query failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// HandleReferredBy lists the signups attributed to a referrer.
//
// HTTP: GET /api/referrals/referred-by/{id}
func (h *ReferralHandler) HandleReferredBy(w http.ResponseWriter, r *http.Request) {
	regs, err := h.waitlist.ReferredBy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    len(regs),
		"referred": regs,
	})
}
