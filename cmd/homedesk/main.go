package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"homedesk/internal/app/services/chat"
	"homedesk/internal/app/services/identity"
	domainchat "homedesk/internal/domain/chat"
	"homedesk/internal/infra/broker/kafka"
	"homedesk/internal/infra/config"
	mongodb "homedesk/internal/infra/db/mongo"
	ginserver "homedesk/internal/infra/http/gin"
	"homedesk/internal/infra/obs"
	"homedesk/internal/infra/storage/memory"
	"homedesk/internal/infra/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	cfg.Env = env

	service := &chat.Service{Logger: logger}
	ready := func() error { return nil }

	if cfg.MongoURI != "" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo connect failed", "error", err)
			os.Exit(1)
		}
		defer client.Close(context.Background())

		conversations := mongodb.NewConversationRepository(client.DB)
		messages := mongodb.NewMessageRepository(client.DB)
		if err := conversations.EnsureIndexes(ctx); err != nil {
			logger.Error("conversation indexes failed", "error", err)
			os.Exit(1)
		}
		if err := messages.EnsureIndexes(ctx); err != nil {
			logger.Error("message indexes failed", "error", err)
			os.Exit(1)
		}
		service.Conversations = conversations
		service.Messages = messages
		service.Listings = mongodb.NewListingDirectory(client.DB)
		service.Users = mongodb.NewUserDirectory(client.DB)
		ready = func() error { return client.Ping(context.Background()) }
		logger.Info("using mongo storage", "db", cfg.MongoDB)
	} else {
		logger.Warn("MONGO_URI not set, using in-memory storage")
	}

	resolver := memory.NewIdentityResolver()
	listings := memory.NewListingDirectory()
	users := memory.NewUserDirectory()
	if service.Conversations == nil {
		service.Conversations = memory.NewConversationRepository()
		service.Messages = memory.NewMessageRepository()
		service.Listings = listings
		service.Users = users
	}

	if cfg.FixturesPath != "" {
		if err := loadFixtures(cfg.FixturesPath, resolver, listings, users); err != nil {
			logger.Warn("support fixtures load failed", "error", err, "path", cfg.FixturesPath)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger)
		if err != nil {
			logger.Error("kafka producer failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		service.Events = publisher
		logger.Info("publishing chat events", "brokers", cfg.KafkaBrokers)
	} else {
		logger.Warn("KAFKA_BROKERS not set, chat events disabled")
	}

	hub := ws.NewHub(logger)
	service.Rooms = hub
	gateway := ws.NewGateway(hub, service, logger, cfg.WSSendBuffer)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: ready}, ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Chat: service, Logger: logger},
		WS:             ginserver.WSHandler{Gateway: gateway},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: resolver, Logger: logger}.Handle,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type fixtureFile struct {
	Users []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
		Token string `json:"token"`
	} `json:"users"`
	Listings []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		City         string `json:"city"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"listings"`
}

// loadFixtures seeds dev tokens and, for the in-memory runtime, the
// listing and user directories.
func loadFixtures(path string, resolver *memory.IdentityResolver, listings *memory.ListingDirectory, users *memory.UserDirectory) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures fixtureFile
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, u := range fixtures.Users {
		if u.Token != "" {
			resolver.Register(u.Token, identity.Identity{ID: u.ID, Name: u.Name, Role: roleFromString(u.Role)})
		}
		users.Add(chat.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	for _, l := range fixtures.Listings {
		listings.Add(chat.ListingSummary{ID: l.ID, Title: l.Title, City: l.City, ThumbnailURL: l.ThumbnailURL})
	}
	return nil
}

func roleFromString(raw string) domainchat.Role {
	if raw == string(domainchat.RoleAdmin) {
		return domainchat.RoleAdmin
	}
	return domainchat.RoleClient
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
