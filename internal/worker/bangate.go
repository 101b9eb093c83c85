package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pkt.systems/pslog"
)

// BanGate asks an external endpoint whether a player may play. The check is
// fail-open: a slow or broken ban service must never keep the whole game
// from accepting connections, so only an explicit "banned" verdict denies.
type BanGate struct {
	url     string
	client  *http.Client
	log     pslog.Logger
	timeout time.Duration
}

// NewBanGate builds a gate for the given endpoint. An empty URL disables
// checking entirely; every player is allowed.
func NewBanGate(banURL string, timeout time.Duration, log pslog.Logger) *BanGate {
	return &BanGate{
		url:     banURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		timeout: timeout,
	}
}

type banVerdict struct {
	Banned bool `json:"banned"`
}

// Allow reports whether the player may proceed. Timeouts, transport errors,
// non-200 answers, and undecodable bodies all allow the player through with
// a log line.
func (g *BanGate) Allow(ctx context.Context, playerID string) bool {
	if g.url == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	checkURL := fmt.Sprintf("%s?player=%s", g.url, url.QueryEscape(playerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		g.log.Warn("ban check skipped", "player", playerID, "error", err)
		return true
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("ban check unreachable, allowing", "player", playerID, "error", err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.log.Warn("ban check bad status, allowing", "player", playerID, "status", resp.StatusCode)
		return true
	}
	var verdict banVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		g.log.Warn("ban check undecodable, allowing", "player", playerID, "error", err)
		return true
	}
	if verdict.Banned {
		g.log.Info("connection rejected by ban gate", "player", playerID)
		return false
	}
	return true
}
