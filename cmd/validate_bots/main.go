// Command validate_bots checks every stored chatbot graph and optionally
// unpublishes the ones that can no longer run.
package main

import (
	"context"
	"encoding/json"
	"flag"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/pkg/botgraph"
)

type storedBot struct {
	ID          string
	WorkspaceID string
	Publish     bool
	Graph       string
}

func main() {
	unpublish := flag.Bool("unpublish", false, "unpublish bots whose graph is invalid")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logging.New(nil, cfg.LogLevel)

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	repo := database.NewChatbotRepository(db)
	ctx := context.Background()

	// Raw rows so a graph that no longer decodes is reported instead of
	// failing the whole query.
	var bots []storedBot
	if err := db.Raw("SELECT id, workspace_id, publish, graph FROM chatbots").Scan(&bots).Error; err != nil {
		log.Fatal().Err(err).Msg("Error fetching chatbots")
	}

	invalid := 0
	for _, b := range bots {
		botLog := log.With("chatbot_id", b.ID)

		var g botgraph.Graph
		err := json.Unmarshal([]byte(b.Graph), &g)
		if err == nil {
			err = g.Validate()
		}
		if err == nil {
			botLog.Debug().Msg("Graph OK")
			continue
		}

		invalid++
		botLog.Warn().Err(err).Str("workspace_id", b.WorkspaceID).Bool("published", b.Publish).Msg("Invalid graph")
		if *unpublish && b.Publish {
			if err := repo.SetPublish(ctx, b.ID, false); err != nil {
				botLog.Error().Err(err).Msg("Error unpublishing chatbot")
				continue
			}
			botLog.Info().Msg("Chatbot unpublished")
		}
	}

	log.Info().Int("checked", len(bots)).Int("invalid", invalid).Msg("DONE!")
}
