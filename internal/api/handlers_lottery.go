package api

import (
	"log/slog"
	"net/http"
	"time"
)

func (h *HandlerProvider) CurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.svc.Lottery(r.Context())
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, h.round(round))
}

func (h *HandlerProvider) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "roundId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	round, err := h.svc.Round(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, h.round(round))
}

func (h *HandlerProvider) EnterLottery(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	round, err := h.svc.Enter(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, h.round(round))
}

type startRoundRequest struct {
	Duration string `json:"duration"`
}

// StartRound opens a round by hand, even while another is running; the new
// round becomes current. Duration is a Go duration string such as "30m".
func (h *HandlerProvider) StartRound(w http.ResponseWriter, r *http.Request) {
	var req startRoundRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration")

		return
	}

	round, err := h.svc.StartLottery(r.Context(), d)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	slog.Info("lottery round started by admin", "round_id", round.ID, "duration", d, "admin", adminSubject(r))

	writeJSON(w, http.StatusCreated, h.round(round))
}

type drawResponse struct {
	RoundID  int64  `json:"roundId"`
	Winner   *int64 `json:"winner"`
	Payout   int64  `json:"payout"`
	Bonus    int64  `json:"bonus,omitempty"`
	Entrants int    `json:"entrants"`
}

func (h *HandlerProvider) EndRound(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "roundId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	res, err := h.svc.EndLottery(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	slog.Info("lottery round ended by admin", "round_id", id, "admin", adminSubject(r))

	writeJSON(w, http.StatusOK, drawResponse{
		RoundID:  res.RoundID,
		Winner:   res.Winner,
		Payout:   res.Payout,
		Bonus:    res.Bonus,
		Entrants: res.Entrants,
	})
}

func adminSubject(r *http.Request) string {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		return ""
	}

	return c.Subject
}
