package main

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/config"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/database"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/repository"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/routes"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/pkg/utils"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	if err := ensureDefaultAccounts(cfg); err != nil {
		log.Fatalf("Failed to seed default accounts: %v", err)
	}

	// 3. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, database.DB)

	// 4. Start Server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func ensureDefaultAccounts(cfg *config.Config) error {
	userRepo := repository.NewUserRepository(database.DB)

	accounts := []struct {
		email    string
		password string
		role     string
	}{
		{cfg.DefaultTraineeEmail, cfg.DefaultTraineePassword, models.RoleTrainee},
		{cfg.DefaultCoachEmail, cfg.DefaultCoachPassword, models.RoleCoach},
	}

	for _, account := range accounts {
		if account.email == "" || account.password == "" {
			continue
		}

		existing, err := userRepo.GetByEmail(context.Background(), account.email)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if existing != nil {
			continue
		}

		hash, err := utils.HashPassword(account.password)
		if err != nil {
			return err
		}

		user := &models.User{
			Email:        account.email,
			PasswordHash: hash,
			Role:         account.role,
		}
		if err := userRepo.CreateUser(context.Background(), user); err != nil {
			return err
		}
		log.Printf("Seeded default %s account %s (id %s)",
			account.role, account.email, strconv.FormatInt(user.ID, 10))
	}

	return nil
}
