// Package maintenance provides one-shot tasks that inspect or tidy the local state and exit.
package maintenance

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/hytaleone/hyquery/internal/config"
	"github.com/hytaleone/hyquery/internal/models"
	"github.com/hytaleone/hyquery/internal/register"
	"github.com/hytaleone/hyquery/internal/storage"
	"github.com/hytaleone/hyquery/internal/vars"
	"github.com/rs/zerolog/log"
)

// historyLimit is the number of attempts printed by --db-show-identity.
const historyLimit = 10

// Identity is the report printed by --db-show-identity.
type Identity struct {
	Build         vars.BuildInfo        `json:"build"`
	ServerID      string                `json:"server_id"`
	Registrations []models.Registration `json:"registrations"`
}

// Run checks if any maintenance flags are set and executes the corresponding task.
// Returns true if a task was executed (indicating the program should exit).
func Run(cfg *config.Config, store *storage.Repository, reg *register.Registrar) bool {
	switch {
	case cfg.Storage.ShowIdentity:
		if err := ShowIdentity(os.Stdout, store); err != nil {
			log.Error().Err(err).Msg("Failed to read identity")
		}
		return true

	case cfg.Storage.PruneHistory > 0:
		before := time.Now().Add(-cfg.Storage.PruneHistory)
		log.Info().Time("before", before).Msg("Pruning registration history...")

		count, err := store.PruneRegistrations(before)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune registration history")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}
		return true

	case cfg.Register.Now:
		RegisterNow(cfg, reg)
		return true
	}

	return false
}

// ShowIdentity writes the stored server id and the latest attempts as JSON.
func ShowIdentity(w io.Writer, store *storage.Repository) error {
	id, err := store.ServerID()
	if err != nil {
		return err
	}

	regs, err := store.Registrations(historyLimit)
	if err != nil {
		return err
	}
	if regs == nil {
		regs = []models.Registration{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Identity{Build: vars.Info(), ServerID: id, Registrations: regs})
}

// RegisterNow performs a single registration in the foreground.
func RegisterNow(cfg *config.Config, reg *register.Registrar) register.Result {
	rc := &register.Config{ServerID: cfg.Register.ServerID}

	id, err := reg.EnsureServerID(rc)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prepare server id")
		return register.Result{Outcome: register.OutcomeFailed, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Register.Timeout)
	defer cancel()

	return reg.Register(ctx, id)
}
