package register

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hytaleone/hyquery/internal/models"
	"github.com/rs/zerolog/log"
)

// Outcome classifies a completed registration attempt.
type Outcome int

const (
	// OutcomeUnknown is a successful status without a usable body.
	OutcomeUnknown Outcome = iota
	// OutcomeClaimed means an administrator owns the listing. URL, if set, manages it.
	OutcomeClaimed
	// OutcomeUnclaimed means nobody owns the listing yet. URL claims it.
	OutcomeUnclaimed
	// OutcomeFailed is a non-2xx status or a transport error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClaimed:
		return "claimed"
	case OutcomeUnclaimed:
		return "unclaimed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one attempt.
type Result struct {
	Err        error
	URL        string
	Outcome    Outcome
	StatusCode int
}

// ParseResponse interprets a 2xx response body. Bodies that are not JSON
// objects yield OutcomeUnknown. Any truthy "claimed" value counts as claimed;
// a "url" that is not a string is ignored.
func ParseResponse(body []byte) Result {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Result{Outcome: OutcomeUnknown}
	}

	var resp models.RegistrationResponse
	resp.Claimed = truthy(doc["claimed"])
	if url, ok := doc["url"].(string); ok {
		resp.URL = strings.TrimSpace(url)
	}

	switch {
	case resp.Claimed:
		return Result{Outcome: OutcomeClaimed, URL: resp.URL}
	case resp.URL != "":
		return Result{Outcome: OutcomeUnclaimed, URL: resp.URL}
	}
	return Result{Outcome: OutcomeUnknown}
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

func (r Result) log(serverID string) {
	switch r.Outcome {
	case OutcomeClaimed:
		ev := log.Info().Str("server_id", serverID)
		if r.URL != "" {
			ev = ev.Str("manage_url", r.URL)
		}
		ev.Msg("Server registered with hytale.one, listing is claimed")
	case OutcomeUnclaimed:
		log.Info().
			Str("server_id", serverID).
			Str("claim_url", r.URL).
			Msg("Server registered with hytale.one, claim it to manage the listing")
	case OutcomeFailed:
		ev := log.Warn().Str("server_id", serverID)
		if r.Err != nil {
			ev = ev.Err(r.Err)
		} else {
			ev = ev.Int("status", r.StatusCode)
		}
		ev.Msg("Server list registration failed")
	default:
		log.Info().Str("server_id", serverID).Msg("Server registered with hytale.one")
	}
}

func (r Result) record(serverID string) models.Registration {
	reg := models.Registration{
		AttemptedAt: time.Now(),
		ServerID:    serverID,
		Outcome:     r.Outcome.String(),
		URL:         r.URL,
		StatusCode:  r.StatusCode,
	}
	if r.Err != nil {
		reg.Error = r.Err.Error()
	}
	return reg
}
