package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/example/companion-bot/internal/adapter"
	"github.com/example/companion-bot/internal/app"
	"github.com/example/companion-bot/internal/config"
	"github.com/example/companion-bot/internal/conversation"
	"github.com/example/companion-bot/internal/repository"
	"github.com/example/companion-bot/pkg/openai"
	"github.com/example/companion-bot/pkg/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	var store repository.ConversationStore
	if cfg.DBConnString != "" {
		store, err = repository.NewPostgres(cfg.DBConnString)
	} else {
		store, err = repository.NewSQLite(cfg.SQLitePath)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	var gen conversation.Generator
	if cfg.OpenAIToken != "" {
		gen = app.NewOpenAIGenerator(openai.NewClient(cfg.OpenAIToken, cfg.OpenAIBaseURL, cfg.OpenAIModel))
	} else {
		log.Println("OPENAI_TOKEN not set, running with the offline responder")
	}

	ctx := context.Background()

	var adapters []adapter.Adapter
	if cfg.TelegramToken != "" {
		client := telegram.NewClient(cfg.TelegramToken)
		if err := client.SetCommands(ctx, []telegram.BotCommand{
			{Command: "pause", Description: "Pause proactive messages"},
			{Command: "resume", Description: "Resume the conversation"},
			{Command: "forget", Description: "Delete our conversation history"},
		}); err != nil {
			log.Println("set commands:", err)
		}
		adapters = append(adapters, adapter.NewTelegram(client))
	} else {
		log.Println("TELEGRAM_TOKEN not set, reading from the console")
		adapters = append(adapters, adapter.NewConsole(os.Stdin, os.Stdout))
	}

	application := app.New(cfg, store, adapters, gen)
	if err := application.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
