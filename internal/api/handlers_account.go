package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/services/ledger"
)

func (h *HandlerProvider) Start(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	err = h.svc.Start(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"accountId": id})
}

type quitResponse struct {
	Token     uuid.UUID `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *HandlerProvider) Quit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	token, expires, err := h.svc.RequestQuit(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusAccepted, quitResponse{Token: token, ExpiresAt: expires})
}

type confirmRequest struct {
	Token uuid.UUID `json:"token"`
}

func (h *HandlerProvider) ConfirmQuit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	var req confirmRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	err = h.svc.ConfirmQuit(r.Context(), id, req.Token)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	AccountID int64      `json:"accountId"`
	Balance   int64      `json:"balance"`
	Items     []itemView `json:"items"`
}

func (h *HandlerProvider) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	snap, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	resp := balanceResponse{
		AccountID: snap.AccountID,
		Balance:   snap.Balance,
		Items:     make([]itemView, 0, len(snap.Items)),
	}

	for itemID, amount := range snap.Items {
		view := itemView{ItemID: itemID, Amount: amount}
		if it, ok := h.svc.Item(itemID); ok {
			view.Name = it.Name
		}

		resp.Items = append(resp.Items, view)
	}

	sort.Slice(resp.Items, func(i, j int) bool { return resp.Items[i].ItemID < resp.Items[j].ItemID })

	writeJSON(w, http.StatusOK, resp)
}

type payRequest struct {
	To     int64 `json:"to"`
	Amount int64 `json:"amount"`
}

func (h *HandlerProvider) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	var req payRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	err = h.svc.Pay(r.Context(), id, req.To, req.Amount)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type rewardResponse struct {
	Reward int64 `json:"reward"`
}

func (h *HandlerProvider) Work(w http.ResponseWriter, r *http.Request) {
	h.reward(w, r, h.svc.Work)
}

func (h *HandlerProvider) Daily(w http.ResponseWriter, r *http.Request) {
	h.reward(w, r, h.svc.Daily)
}

func (h *HandlerProvider) reward(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id int64) (int64, error),
) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	amount, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, rewardResponse{Reward: amount})
}

type itemRequest struct {
	Item     string `json:"item"`
	Quantity int64  `json:"quantity"`
}

// quantity defaults to one when omitted.
func (req itemRequest) quantity() int64 {
	if req.Quantity == 0 {
		return 1
	}

	return req.Quantity
}

type receiptResponse struct {
	Item     itemView `json:"item"`
	Quantity int64    `json:"quantity"`
	Total    int64    `json:"total"`
	Balance  int64    `json:"balance"`
	Held     int64    `json:"held"`
}

func (h *HandlerProvider) Buy(w http.ResponseWriter, r *http.Request) {
	h.exchange(w, r, h.svc.Buy)
}

func (h *HandlerProvider) Sell(w http.ResponseWriter, r *http.Request) {
	h.exchange(w, r, h.svc.Sell)
}

func (h *HandlerProvider) exchange(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id int64, item string, qty int64) (ledger.Receipt, error),
) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	var req itemRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	rc, err := fn(r.Context(), id, req.Item, req.quantity())
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{
		Item:     itemView{ItemID: rc.Item.ID, Name: rc.Item.Name, Price: rc.Item.Price},
		Quantity: rc.Quantity,
		Total:    rc.Total,
		Balance:  rc.Balance,
		Held:     rc.Held,
	})
}

type tradeRequest struct {
	To       int64  `json:"to"`
	Item     string `json:"item"`
	Quantity int64  `json:"quantity"`
}

func (h *HandlerProvider) Trade(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	var req tradeRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	qty := itemRequest{Quantity: req.Quantity}.quantity()

	err = h.svc.Trade(r.Context(), id, req.To, req.Item, qty)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type leaderboardEntry struct {
	Rank      int   `json:"rank"`
	AccountID int64 `json:"accountId"`
	Balance   int64 `json:"balance"`
}

// Leaderboard accepts ?limit=N and ?scope=1,2,3 to rank a subset of accounts.
func (h *HandlerProvider) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")

			return
		}

		limit = n
	}

	var scope []int64

	if raw := q.Get("scope"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid scope")

				return
			}

			scope = append(scope, id)
		}
	}

	top, err := h.svc.Leaderboard(r.Context(), limit, scope)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	resp := make([]leaderboardEntry, 0, len(top))
	for i, a := range top {
		resp = append(resp, leaderboardEntry{Rank: i + 1, AccountID: a.ID, Balance: a.Balance})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HandlerProvider) Store(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Store()

	resp := make([]itemView, 0, len(list))
	for _, it := range list {
		resp = append(resp, itemView{ItemID: it.ID, Name: it.Name, Price: it.Price})
	}

	writeJSON(w, http.StatusOK, resp)
}
