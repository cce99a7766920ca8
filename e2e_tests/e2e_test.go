package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

// baseURL points at a running api. The suite is skipped when E2E_BASE_URL
// is unset, e.g. http://localhost:8080 under docker compose.
func baseURL(t *testing.T) string {
	t.Helper()

	u := os.Getenv("E2E_BASE_URL")
	if u == "" {
		t.Skip("E2E_BASE_URL not set")
	}

	return u
}

// uniqAccount returns an account id unused by earlier runs against the same
// database.
func uniqAccount(offset int64) int64 {
	return time.Now().UnixNano()/1000 + offset
}

func TestE2E_AccountFlow(t *testing.T) {
	base := baseURL(t)
	waitUntilReady(t, base)

	id := uniqAccount(0)

	t.Run("start_creates_account_with_zero_balance", func(t *testing.T) {
		code, body := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/start", base, id), nil)
		if code != http.StatusCreated {
			t.Fatalf("start: want 201, got %d (%s)", code, body)
		}

		if got := getBalance(t, base, id); got != 0 {
			t.Fatalf("initial balance: want 0, got %d", got)
		}
	})

	t.Run("start_twice_conflicts", func(t *testing.T) {
		code, body := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/start", base, id), nil)
		if code != http.StatusConflict {
			t.Fatalf("second start: want 409, got %d (%s)", code, body)
		}
	})

	t.Run("work_pays_once_per_cooldown", func(t *testing.T) {
		code, body := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/work", base, id), nil)
		if code != http.StatusOK {
			t.Fatalf("work: want 200, got %d (%s)", code, body)
		}

		var reward struct {
			Reward int64 `json:"reward"`
		}

		err := json.Unmarshal([]byte(body), &reward)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if reward.Reward < 10 || reward.Reward > 100 {
			t.Fatalf("reward out of range: %d", reward.Reward)
		}

		code, _ = call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/work", base, id), nil)
		if code != http.StatusTooManyRequests {
			t.Fatalf("second work: want 429, got %d", code)
		}

		if got := getBalance(t, base, id); got != reward.Reward {
			t.Fatalf("balance after work: want %d, got %d", reward.Reward, got)
		}
	})

	t.Run("buy_without_funds_conflicts", func(t *testing.T) {
		code, body := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/buy", base, id),
			map[string]any{"item": "Golden Crown"})
		if code != http.StatusConflict {
			t.Fatalf("buy crown: want 409, got %d (%s)", code, body)
		}
	})
}

func TestE2E_PayAndValidation(t *testing.T) {
	base := baseURL(t)
	waitUntilReady(t, base)

	from, to := uniqAccount(1), uniqAccount(2)

	for _, id := range []int64{from, to} {
		code, body := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/start", base, id), nil)
		if code != http.StatusCreated {
			t.Fatalf("start %d: want 201, got %d (%s)", id, code, body)
		}
	}

	t.Run("pay_more_than_balance_conflicts", func(t *testing.T) {
		code, _ := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/pay", base, from),
			map[string]any{"to": to, "amount": 1})
		if code != http.StatusConflict {
			t.Fatalf("pay: want 409, got %d", code)
		}

		if got := getBalance(t, base, to); got != 0 {
			t.Fatalf("recipient balance changed: %d", got)
		}
	})

	t.Run("pay_self_rejected", func(t *testing.T) {
		code, _ := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/pay", base, from),
			map[string]any{"to": from, "amount": 1})
		if code != http.StatusBadRequest {
			t.Fatalf("self pay: want 400, got %d", code)
		}
	})

	t.Run("unknown_field_rejected", func(t *testing.T) {
		code, _ := call(t, http.MethodPost, fmt.Sprintf("%s/accounts/%d/pay", base, from),
			map[string]any{"to": to, "amount": 1, "note": "x"})
		if code != http.StatusBadRequest {
			t.Fatalf("unknown field: want 400, got %d", code)
		}
	})

	t.Run("unknown_account_not_found", func(t *testing.T) {
		code, _ := call(t, http.MethodGet, fmt.Sprintf("%s/accounts/%d/balance", base, uniqAccount(3)), nil)
		if code != http.StatusNotFound {
			t.Fatalf("unknown account: want 404, got %d", code)
		}
	})
}

/* -------------------- helpers -------------------- */

func call(t *testing.T, method, u string, body any) (int, string) {
	t.Helper()

	var rd io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

func getBalance(t *testing.T, base string, id int64) int64 {
	t.Helper()

	u := fmt.Sprintf("%s/accounts/%d/balance", base, id)

	code, body := call(t, http.MethodGet, u, nil)
	if code != http.StatusOK {
		t.Fatalf("GET %s: want 200, got %d (%s)", u, code, body)
	}

	var payload struct {
		AccountID int64 `json:"accountId"`
		Balance   int64 `json:"balance"`
	}

	err := json.Unmarshal([]byte(body), &payload)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}

	if payload.AccountID != id {
		t.Fatalf("accountId mismatch: want %d, got %d", id, payload.AccountID)
	}

	return payload.Balance
}

// waitUntilReady polls /healthz until it answers 200 or waitReady passes.
func waitUntilReady(t *testing.T, base string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	u := base + "/healthz"

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", u, waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(u)
			if err != nil {
				continue
			}

			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}
