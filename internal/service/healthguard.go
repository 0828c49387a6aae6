package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/agent"
	"github.com/karthiksai109/healthguard/internal/cache"
	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/decision"
	"github.com/karthiksai109/healthguard/internal/delivery"
	"github.com/karthiksai109/healthguard/internal/inference"
	"github.com/karthiksai109/healthguard/internal/ingestion"
	"github.com/karthiksai109/healthguard/internal/memory"
	"github.com/karthiksai109/healthguard/internal/models"
	"github.com/karthiksai109/healthguard/internal/notify"
	"github.com/karthiksai109/healthguard/internal/queue"
	"github.com/karthiksai109/healthguard/internal/report"
	"github.com/karthiksai109/healthguard/internal/repository"
	"github.com/karthiksai109/healthguard/internal/rules"
)

// HealthGuardService 监护服务（整合各层）
type HealthGuardService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	encryptor    *repository.Encryptor
	patientRepo  *repository.PatientRepository
	vitalsRepo   *repository.VitalsRepository
	logsRepo     *repository.LogsRepository
	alertsRepo   *repository.AlertsRepository
	auditRepo    *repository.AuditRepository
	alertCache   *cache.AlertCache
	loopState    *cache.LoopState
	registry     *ingestion.Registry
	ingestor     *ingestion.Ingestor
	mqttSource   *ingestion.MQTTSource
	orchestrator *agent.Orchestrator
	reporter     *report.Generator
}

// NewHealthGuardService 创建监护服务
func NewHealthGuardService(cfg *config.Config, logger *zap.Logger) (*HealthGuardService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建加密器与 Repository 层
	encryptor, err := repository.NewEncryptor(cfg.Encryption.Passphrase, cfg.Encryption.Salt, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	patientRepo := repository.NewPatientRepository(db, encryptor, logger)
	vitalsRepo := repository.NewVitalsRepository(db, encryptor, logger)
	logsRepo := repository.NewLogsRepository(db, encryptor, logger)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db, logger)

	// 4. 创建 Cache 层
	alertCache := cache.NewAlertCache(cfg, redisClient, logger)
	loopState := cache.NewLoopState(cfg, redisClient, logger)

	// 5. 创建推理与通知客户端
	akashClient := inference.NewAkashClient(cfg, logger)
	veniceClient := inference.NewVeniceClient(cfg, logger)
	telegramClient := notify.NewTelegramClient(cfg, logger)

	// 6. 创建投递引擎与上下文装配（投递成功后顺带刷新活跃报警缓存）
	deliveryEngine := delivery.NewEngine(telegramClient, veniceClient, alertsRepo, auditRepo, logger)
	cachedDelivery := newCachingDeliverer(deliveryEngine, alertsRepo, alertCache, repository.HashPatientID, logger)
	contextLoader := memory.NewContextLoader(vitalsRepo, logsRepo, alertsRepo, logger)

	// 7. 创建摄取层
	registry := ingestion.NewRegistry(logger)
	ingestor := ingestion.NewIngestor(
		cfg.Ephemeral.DataDir,
		time.Duration(cfg.Ephemeral.TTL)*time.Second,
		registry,
		logger,
	)

	// 8. 创建调度器
	eventQueue := queue.NewEventQueue(cfg.Agent.QueueCapacity, logger)
	orchestrator := agent.NewOrchestrator(
		time.Duration(cfg.Agent.Interval)*time.Second,
		cfg.Agent.AutonomousEvery,
		cfg.Agent.ContextDays,
		agent.Deps{
			Queue:     eventQueue,
			Registry:  registry,
			Memory:    contextLoader,
			Vision:    veniceClient,
			STT:       veniceClient,
			Akash:     akashClient,
			Rules:     rules.NewEngine(logger),
			Fusion:    decision.NewFusion(cfg.Decision.EscalateScore, cfg.Decision.MonitorScore, logger),
			Delivery:  cachedDelivery,
			Vitals:    vitalsRepo,
			Logs:      logsRepo,
			Patients:  patientRepo,
			LoopState: loopState,
			HashFn:    repository.HashPatientID,
			Model:     cfg.AkashML.PrimaryModel,
			Logger:    logger,
		},
	)

	// 9. 创建周报生成器
	reporter := report.NewGenerator(
		vitalsRepo, logsRepo, alertsRepo,
		akashClient, veniceClient, auditRepo,
		repository.HashPatientID, logger,
	)

	s := &HealthGuardService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		encryptor:    encryptor,
		patientRepo:  patientRepo,
		vitalsRepo:   vitalsRepo,
		logsRepo:     logsRepo,
		alertsRepo:   alertsRepo,
		auditRepo:    auditRepo,
		alertCache:   alertCache,
		loopState:    loopState,
		registry:     registry,
		ingestor:     ingestor,
		orchestrator: orchestrator,
		reporter:     reporter,
	}

	// 10. MQTT 体征源（可选）
	if cfg.MQTT.Enabled {
		mqttSource, err := ingestion.NewMQTTSource(cfg, ingestor, s.Push, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create mqtt source: %w", err)
		}
		s.mqttSource = mqttSource
	}

	return s, nil
}

// Start 启动服务
func (s *HealthGuardService) Start(ctx context.Context) error {
	s.logger.Info("Starting healthguard service",
		zap.Int("agent_interval", s.config.Agent.Interval),
		zap.Bool("mqtt_enabled", s.config.MQTT.Enabled))

	s.orchestrator.Start(ctx)

	if s.mqttSource != nil {
		if err := s.mqttSource.Start(); err != nil {
			return fmt.Errorf("failed to start mqtt source: %w", err)
		}
	}

	return nil
}

// Stop 停止服务
func (s *HealthGuardService) Stop() error {
	s.logger.Info("Stopping healthguard service")

	if s.mqttSource != nil {
		s.mqttSource.Stop()
	}
	s.orchestrator.Stop()

	// 退出前清扫本进程登记过的临时文件
	if deleted := s.registry.Sweep(); deleted > 0 {
		s.logger.Info("final ephemeral cleanup", zap.Int("deleted", deleted))
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}

// Push 入队一个已摄取条目（非阻塞），MQTT 源与外部摄取共用入口
func (s *HealthGuardService) Push(item models.IngestedItem) bool {
	return s.orchestrator.Push(item)
}

// Ingestor 摄取层入口
func (s *HealthGuardService) Ingestor() *ingestion.Ingestor {
	return s.ingestor
}

// Status 当前运行状态快照
func (s *HealthGuardService) Status() agent.Status {
	return s.orchestrator.GetStatus()
}

// GenerateWeeklyReport 生成指定患者周报并导出 Excel
func (s *HealthGuardService) GenerateWeeklyReport(ctx context.Context, patientID string) (models.WeeklyReport, error) {
	rep, err := s.reporter.Generate(ctx, patientID)
	if err != nil {
		return rep, err
	}
	data, err := s.reporter.ExportExcel(rep)
	if err != nil {
		s.logger.Warn("failed to export weekly report", zap.Error(err))
		return rep, nil
	}
	reportsDir := filepath.Join(s.config.Ephemeral.DataDir, "reports")
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		s.logger.Warn("failed to create reports dir", zap.Error(err))
		return rep, nil
	}
	exportPath := filepath.Join(reportsDir,
		fmt.Sprintf("weekly_report_%s_%s.xlsx", rep.PatientIDHash, time.Now().Format("20060102")))
	if err := os.WriteFile(exportPath, data, 0o600); err != nil {
		s.logger.Warn("failed to write weekly report", zap.Error(err))
		return rep, nil
	}
	rep.ExportPath = exportPath
	return rep, nil
}
