// Package steam resolves display names for subject identifiers via the
// platform player-summary API. Strictly best-effort: every failure
// resolves to an empty name.
package steam

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const summaryEndpoint = "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v2/"

// NameResolver looks up persona names. With no API key configured it
// resolves everything to "".
type NameResolver struct {
	apiKey string
	http   *http.Client
	logger *slog.Logger

	// endpoint is overridable in tests.
	endpoint string
}

// NewNameResolver creates a resolver using the given API key (may be
// empty).
func NewNameResolver(apiKey string, timeout time.Duration, logger *slog.Logger) *NameResolver {
	return &NameResolver{
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
		endpoint: summaryEndpoint,
	}
}

// ResolveName returns the current persona name for a platform ID, or ""
// when it cannot be determined.
func (r *NameResolver) ResolveName(ctx context.Context, suspectID string) string {
	if r.apiKey == "" {
		return ""
	}

	query := url.Values{}
	query.Set("key", r.apiKey)
	query.Set("steamids", suspectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return ""
	}

	resp, err := r.http.Do(req)
	if err != nil {
		r.logger.Warn("name lookup failed", "suspect", suspectID, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("name lookup returned error status", "suspect", suspectID, "status", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}

	var decoded struct {
		Response struct {
			Players []struct {
				PersonaName string `json:"personaname"`
			} `json:"players"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		r.logger.Warn("name lookup returned malformed response", "suspect", suspectID, "error", err)
		return ""
	}
	if len(decoded.Response.Players) == 0 {
		return ""
	}

	name := decoded.Response.Players[0].PersonaName
	r.logger.Info("resolved suspect name", "suspect", suspectID, "name", name)
	return name
}
