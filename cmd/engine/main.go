package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"revyze/engine/internal/bootstrap"
	"revyze/engine/internal/config"
	"revyze/engine/internal/email"
	"revyze/engine/internal/realtime"
	"revyze/engine/internal/roles"
	"revyze/engine/internal/search"
	"revyze/engine/internal/storage"
	"revyze/engine/internal/store"
	"revyze/engine/internal/workspace"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db)

	feed, err := realtime.NewFeed(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer feed.Close()

	files, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		log.Fatalf("object storage failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mail.IsConfigured() {
		log.Printf("email: SMTP not configured, invitations disabled")
	}

	viewer := roles.Viewer{
		UserID: os.Getenv("REVYZE_USER_ID"),
		Email:  os.Getenv("REVYZE_USER_EMAIL"),
	}
	viewerName := os.Getenv("REVYZE_USER_NAME")
	svc := workspace.New(workspace.Options{
		Store:       dataStore,
		Feed:        feed,
		Files:       files,
		Index:       searchService,
		Mail:        mail,
		Suppression: workspace.NewWindowPolicy(cfg.SuppressWindow),
		AppBaseURL:  cfg.AppBaseURL,
		Notify: func(msg string) {
			log.Printf("notice: %s", msg)
		},
		OnEvicted: func(projectID string) {
			log.Printf("workspace: project %s removed remotely, returning to %s", projectID, cfg.DashboardURL)
		},
	})

	resolver := bootstrap.New(bootstrap.Options{
		Navigator:  &navigator{ctx: ctx, svc: svc, cfg: cfg},
		GraceDelay: cfg.ResolveGraceDelay,
	})

	if viewer.UserID != "" {
		svc.SetViewer(viewer, viewerName)
		resolver.SetAuthenticated()
		projects, err := svc.LoadProjects(ctx)
		if err != nil {
			log.Fatalf("load projects failed: %v", err)
		}
		log.Printf("workspace: loaded %d projects for %s", len(projects), viewer.UserID)
		if profile, err := dataStore.GetUserProfile(ctx, viewer.UserID); err == nil {
			log.Printf("profile: %s has %d comments, %d replies", viewer.UserID, profile.CommentCount, profile.ReplyCount)
		}
		resolver.SetProjects(projects)
	}
	if raw := os.Getenv("REVYZE_DEEP_LINK"); raw != "" {
		resolver.HandleQuery(parseDeepLink(raw))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	svc.Close()
	log.Printf("engine: shut down")
}
