package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"permission_service/internal/config"
	mongodb "permission_service/internal/database/mongo"
	redisdb "permission_service/internal/database/redis"
	"permission_service/internal/events"
	"permission_service/internal/handlers"
	"permission_service/internal/repository"
	"permission_service/internal/service"
	"permission_service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/evolvia", "log", "permission_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.ServiceConfig

	mongoClient, db, err := mongodb.Connect(cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongodb.Disconnect(mongoClient)

	redisClient := redisdb.Connect(cfg.Redis)
	defer redisClient.Close()

	// Repositories
	permissionRepo := repository.NewPermissionRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	sharingRepo := repository.NewSharingRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	userRepo := repository.NewUserRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	redisRepo := repository.NewRedisRepo(redisClient)

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := permissionRepo.CreateIndexes(indexCtx); err != nil {
		log.Printf("Warning: failed to create permission indexes: %v", err)
	}
	if err := sharingRepo.CreateIndexes(indexCtx); err != nil {
		log.Printf("Warning: failed to create sharing indexes: %v", err)
	}
	if err := activityRepo.CreateIndexes(indexCtx); err != nil {
		log.Printf("Warning: failed to create activity indexes: %v", err)
	}
	indexCancel()

	// Events
	publisher, err := events.NewEventPublisher(cfg.RabbitMQ.URI)
	if err != nil {
		log.Fatalf("Failed to create event publisher: %v", err)
	}
	defer publisher.Close()

	// Services
	principalService := service.NewPrincipalService(userRepo, teamRepo, orgRepo, redisRepo, cfg.Cache.PrincipalTTL)
	activityService := service.NewActivityService(activityRepo, resourceRepo, teamRepo, principalService)
	permissionService := service.NewPermissionService(permissionRepo, principalService, publisher)
	ruleService := service.NewRuleService(ruleRepo, permissionRepo, permissionService, publisher)
	sharingService := service.NewSharingService(sharingRepo, resourceRepo, principalService, activityService, publisher)
	invitationService := service.NewInvitationService(invitationRepo, sharingRepo, resourceRepo, userRepo, teamRepo, sharingService, principalService, publisher)
	batchService := service.NewBatchService(templateRepo, resourceRepo, sharingService, activityService)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ruleService.CreateBuiltInRules(seedCtx); err != nil {
		log.Printf("Warning: failed to seed built-in rules: %v", err)
	}
	seedCancel()

	consumer, err := events.NewEventConsumer(cfg.RabbitMQ.URI, principalService)
	if err != nil {
		log.Fatalf("Failed to create event consumer: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Printf("Warning: failed to start event consumer: %v", err)
	}
	defer consumer.Close()

	// Service discovery
	registry, err := discovery.NewServiceRegistry(cfg)
	if err != nil {
		log.Printf("Warning: Consul client init failed: %v", err)
	} else if err := registry.Register(); err != nil {
		log.Printf("Warning: Consul registration failed: %v", err)
	} else {
		defer func() {
			if err := registry.Deregister(); err != nil {
				log.Printf("Error deregistering from Consul: %v", err)
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	permissionHandler := handlers.NewPermissionHandler(permissionService, principalService, redisRepo, cfg.Auth.JWTSecret)
	ruleHandler := handlers.NewRuleHandler(ruleService, cfg.Auth.JWTSecret)
	sharingHandler := handlers.NewSharingHandler(sharingService, invitationService, batchService, activityService, cfg.Auth.JWTSecret)

	permissionHandler.RegisterRoutes(app)
	ruleHandler.RegisterRoutes(app)
	sharingHandler.RegisterRoutes(app)

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + ":" + cfg.Server.Port); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	<-doneChan
	log.Println("Server exited, goodbye!")
}
