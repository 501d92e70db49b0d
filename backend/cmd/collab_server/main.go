package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/httpapi/handlers"
	"collabEngine/backend/internal/httpapi/middleware"
	"collabEngine/backend/internal/store"
	"collabEngine/backend/internal/ws"
)

type CollabConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"Auth"`
	Collab struct {
		GracePeriodSeconds int `mapstructure:"gracePeriodSeconds"`
		DebounceMillis     int `mapstructure:"debounceMillis"`
		SweepMinutes       int `mapstructure:"sweepMinutes"`
		IdleHours          int `mapstructure:"idleHours"`
		HistoryDepth       int `mapstructure:"historyDepth"`
		RingCapacity       int `mapstructure:"ringCapacity"`
		DefaultPriority    int `mapstructure:"defaultPriority"`
	} `mapstructure:"Collab"`
}

func initConfig() (*CollabConfig, error) {
	cfg := &CollabConfig{}
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	// works whether started from the repo root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err = store.AutoMigrate(gormDB); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// snapshot history goes through plain database/sql
	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	kafkaCfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	kafkaSem := collab.NewSemaphoreControl()
	wsSem := collab.NewSemaphoreControl()

	dispatcher := collab.NewEventDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.EventDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	gate := store.NewPermissionStore(gormDB)
	registry := collab.NewRegistry(
		gate,
		store.NewContentStore(gormDB),
		store.NewSnapshotStore(db),
		store.NewActivityStore(gormDB),
		store.NewLockStore(gormDB),
		dispatcher,
		collab.Options{
			GracePeriod:   time.Duration(cfg.Collab.GracePeriodSeconds) * time.Second,
			Debounce:      time.Duration(cfg.Collab.DebounceMillis) * time.Millisecond,
			SweepInterval: time.Duration(cfg.Collab.SweepMinutes) * time.Minute,
			IdleThreshold: time.Duration(cfg.Collab.IdleHours) * time.Hour,
			HistoryDepth:  cfg.Collab.HistoryDepth,
			RingCapacity:  cfg.Collab.RingCapacity,
			Priorities:    collab.PriorityPolicy{Default: cfg.Collab.DefaultPriority},
		},
	)

	sweeper := collab.NewSweeper(registry)
	sweeper.Start()

	presenceCache := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presenceCache)
	manager := ws.NewManager(hub, registry, gate, wsSem)
	admin := handlers.NewAdminHandlers(registry)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	collabGroup := r.Group("/collab")
	collabGroup.Use(middleware.AuthMiddleware(cfg.Auth.Path))
	collabGroup.GET("/ws", manager.WebSocketConnect)
	collabGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg.Auth.Path))
	adminGroup.GET("/documents", admin.ListDocuments)
	adminGroup.POST("/documents/:projectID/:fileID/flush", admin.FlushDocument)
	adminGroup.POST("/flush", admin.FlushAll)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	sweeper.Stop()
	// final flush of every dirty document before the process exits
	registry.Close(ctx)
}
