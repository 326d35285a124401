package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/otpgw/otpgw/internal/config"
	"github.com/otpgw/otpgw/internal/handlers"
	"github.com/otpgw/otpgw/internal/middleware"
	"github.com/otpgw/otpgw/internal/repository"
	"github.com/otpgw/otpgw/internal/service"
	"github.com/otpgw/otpgw/internal/sms"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	redisClient, err := initRedis(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Redis")
	}

	snsClient, err := initSNS(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize SNS")
	}

	// Initialize repositories
	otpRepo := repository.NewOTPRepository(redisClient, &cfg.OTP, logger)

	// Initialize services
	tokenService, err := service.NewTokenService(&cfg.Token, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	dispatcher := sms.NewClient(snsClient, logger)
	verificationService := service.NewVerificationService(otpRepo, dispatcher, tokenService, &cfg.OTP, logger)

	otpHandlers := handlers.NewOTPHandlers(verificationService, logger)
	router := setupRouter(otpHandlers, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis client initialized")
	return client, nil
}

func initSNS(cfg *config.Config, logger *logrus.Logger) (*sns.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.SNS.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.SNS.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.SNS.Endpoint,
						SigningRegion: cfg.SNS.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.SNS.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(awsCfg)
	logger.Info("SNS client initialized")
	return client, nil
}

func setupRouter(otpHandlers *handlers.OTPHandlers, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/send-otp", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/verify-otp", otpHandlers.VerifyOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/verify-number", otpHandlers.VerifyNumber).Methods("POST", "OPTIONS")
	router.HandleFunc("/resend-otp", otpHandlers.ResendOTP).Methods("POST", "OPTIONS")

	return router
}
