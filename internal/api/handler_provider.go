package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/items"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
	"github.com/fastprodman/coinledger/internal/services/economy"
	"github.com/fastprodman/coinledger/internal/services/ledger"
	lotterysvc "github.com/fastprodman/coinledger/internal/services/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

// Economy is the command surface served over HTTP.
type Economy interface {
	Start(ctx context.Context, id int64) error
	RequestQuit(ctx context.Context, id int64) (uuid.UUID, time.Time, error)
	ConfirmQuit(ctx context.Context, id int64, token uuid.UUID) error
	Balance(ctx context.Context, id int64) (wallet.Snapshot, error)
	Pay(ctx context.Context, from, to, amount int64) error
	Work(ctx context.Context, id int64) (int64, error)
	Daily(ctx context.Context, id int64) (int64, error)
	Leaderboard(ctx context.Context, limit int, scope []int64) ([]accounts.Account, error)
	Store() []items.Item
	Item(id int64) (items.Item, bool)
	Buy(ctx context.Context, id int64, item string, qty int64) (ledger.Receipt, error)
	Sell(ctx context.Context, id int64, item string, qty int64) (ledger.Receipt, error)
	Trade(ctx context.Context, from, to int64, item string, qty int64) error
	Lottery(ctx context.Context) (lottery.Round, error)
	Round(ctx context.Context, id int64) (lottery.Round, error)
	Enter(ctx context.Context, id int64) (lottery.Round, error)
	StartLottery(ctx context.Context, d time.Duration) (lottery.Round, error)
	EndLottery(ctx context.Context, roundID int64) (lotterysvc.Result, error)
}

var _ Economy = (*economy.Service)(nil)

// HandlerProvider wraps the economy service and exposes HTTP handlers.
type HandlerProvider struct {
	svc Economy
	now func() time.Time
}

func NewHandler(svc Economy) *HandlerProvider {
	return &HandlerProvider{svc: svc, now: time.Now}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusError struct {
	target error
	status int
	msg    string
}

var errorTable = []statusError{
	{ledger.ErrAccountNotFound, http.StatusNotFound, "account not found, use start first"},
	{ledger.ErrAlreadyRegistered, http.StatusConflict, "account already registered"},
	{ledger.ErrInsufficientFunds, http.StatusConflict, "insufficient funds"},
	{ledger.ErrInsufficientItems, http.StatusConflict, "insufficient items"},
	{ledger.ErrItemNotFound, http.StatusNotFound, "item not found"},
	{ledger.ErrSelfTrade, http.StatusBadRequest, "cannot trade with yourself"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "amount must be positive"},
	{economy.ErrConfirmationExpired, http.StatusGone, "confirmation expired"},
	{lottery.ErrRoundNotFound, http.StatusNotFound, "lottery round not found"},
	{lottery.ErrRoundNotOpen, http.StatusConflict, "no open lottery round"},
	{lottery.ErrRoundAlreadyOpen, http.StatusConflict, "a lottery round is already open"},
	{lottery.ErrClaimLost, http.StatusConflict, "lottery round is being drawn"},
	{lottery.ErrInvalidRoundRange, http.StatusBadRequest, "invalid round duration"},
	{lotterysvc.ErrInvalidDuration, http.StatusBadRequest, "invalid round duration"},
}

// writeServiceError maps a service error to a response. Only errors that
// are not user errors are logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var cd *ledger.CooldownError
	if errors.As(err, &cd) {
		secs := int64(cd.Remaining.Round(time.Second) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":            cd.Command + " on cooldown",
			"retryAfterSecond": max(secs, 1),
		})

		return
	}

	if economy.IsUserError(err) {
		for _, se := range errorTable {
			if errors.Is(err, se.target) {
				writeError(w, se.status, se.msg)

				return
			}
		}
	}

	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFrom(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "something went wrong")
}

// parseIDParam reads a positive integer chi URL param such as {accountId}.
func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}

	return id, nil
}

// decodeBody decodes a JSON body of at most 1MB, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

type itemView struct {
	ItemID int64  `json:"itemId"`
	Name   string `json:"name"`
	Amount int64  `json:"amount,omitempty"`
	Price  int64  `json:"price,omitempty"`
}

type roundView struct {
	RoundID   int64     `json:"roundId"`
	State     string    `json:"state"`
	Pool      int64     `json:"pool"`
	Entrants  []int64   `json:"entrants"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Winner    *int64    `json:"winner,omitempty"`
	Payout    int64     `json:"payout,omitempty"`
}

func (h *HandlerProvider) round(r lottery.Round) roundView {
	return roundView{
		RoundID:   r.ID,
		State:     r.State(h.now()).String(),
		Pool:      r.Pool,
		Entrants:  r.Entrants,
		StartTime: r.Start,
		EndTime:   r.End,
		Winner:    r.Winner,
		Payout:    r.Payout,
	}
}
