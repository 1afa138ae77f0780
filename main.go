package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trackdeck/config"
	"trackdeck/llm"
	"trackdeck/models"
	"trackdeck/providers"
	"trackdeck/providers/gmail"
	"trackdeck/providers/graphmail"
	"trackdeck/services"
	"trackdeck/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	updatesCreatedCounter prometheus.Counter
	rowsImportedCounter   prometheus.Counter
)

func init() {
	updatesCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updates_created_total",
			Help: "Total number of update records created by the inbox pipeline.",
		},
	)
	rowsImportedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rows_imported_total",
			Help: "Total number of rows imported via bulk import.",
		},
	)
	prometheus.MustRegister(updatesCreatedCounter, rowsImportedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// identityMiddleware verlangt die User-ID des externen Identity-Providers.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing X-User-ID"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString("userID")
}

// respondServiceError mappt die Fehler-Taxonomie auf HTTP-Status-Codes.
func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, services.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrRowNotFound),
		errors.Is(err, services.ErrTrackerNotFound),
		errors.Is(err, services.ErrUpdateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Error("Unerwarteter Service-Fehler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to tracker database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Tracker{},
		&models.TrackerRow{},
		&models.RowAlias{},
		&models.UpdateRecord{},
		&models.ProcessedSource{},
	)

	// Setup Providers
	enabledProviderNames := strings.Split(cfg.EnabledProviders, ",")
	var enabledProviders []providers.Provider
	for _, name := range enabledProviderNames {
		switch strings.TrimSpace(name) {
		case "gmail":
			enabledProviders = append(enabledProviders, gmail.NewFetcher(cfg, logging))
		case "graphmail":
			enabledProviders = append(enabledProviders, graphmail.NewFetcher(cfg, logging))
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	if len(enabledProviders) == 0 {
		logging.Fatal("No valid providers enabled. Check ENABLED_PROVIDERS in .env")
	}
	logging.Info("Active providers loaded", zap.Strings("providers", enabledProviderNames))

	// Setup Services
	s3c, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}

	llmClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, llm.CallSettings{
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
	}, logging)

	extractionProfile := llm.ProfileTrackerUpdate
	switch cfg.ExtractionProfile {
	case "discovery":
		extractionProfile = llm.ProfileTrackerDiscovery
	case "update", "":
	default:
		logging.Warn("Unknown extraction profile, falling back to update", zap.String("profile", cfg.ExtractionProfile))
	}

	trackerService := services.NewTrackerService(db, logging)
	rowService := services.NewRowService(db, logging)
	importService := services.NewImportService(cfg, db, rowService, logging)
	aliasService := services.NewAliasService(db, logging)
	matchService := services.NewMatchService(logging)
	extractor := services.NewExtractor(llmClient, extractionProfile, rowService, aliasService, logging)
	proposalBuilder := services.NewProposalBuilder(rowService, logging)
	ledger := services.NewLedger(cfg, db, logging)
	updateService := services.NewUpdateService(db, trackerService, rowService, logging)
	exportService := services.NewExportService(cfg, rowService, s3c, logging)

	pipeline := &services.Pipeline{
		Config:    cfg,
		DB:        db,
		Providers: enabledProviders,
		Trackers:  trackerService,
		Matcher:   matchService,
		Extractor: extractor,
		Builder:   proposalBuilder,
		Ledger:    ledger,
		Logger:    logging,
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", identityMiddleware())

	// Setup Routes
	setupTrackerRoutes(api, trackerService, logging)
	setupRowRoutes(api, trackerService, rowService, logging)
	setupImportRoutes(api, trackerService, importService, logging)
	setupAliasRoutes(api, trackerService, aliasService, logging)
	setupExportRoutes(api, trackerService, exportService, logging)
	setupUpdateRoutes(api, updateService, logging)
	setupInboxRoutes(api, pipeline, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled inbox pipeline...")
		result, err := pipeline.RunAll(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("updates_created", result.UpdatesCreated))
			updatesCreatedCounter.Add(float64(result.UpdatesCreated))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupTrackerRoutes(router *gin.RouterGroup, trackers *services.TrackerService, log *zap.Logger) {
	rg := router.Group("/trackers")

	rg.POST("/", func(c *gin.Context) {
		var req struct {
			Name             string                    `json:"name" binding:"required"`
			Description      string                    `json:"description"`
			Columns          []models.ColumnDefinition `json:"columns" binding:"required"`
			PrimaryKeyColumn string                    `json:"primary_key_column" binding:"required"`
			FolderID         *uint                     `json:"folder_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		tracker, err := trackers.Create(callerID(c), req.Name, req.Description, req.Columns, req.PrimaryKeyColumn, req.FolderID)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, tracker)
	})

	rg.GET("/", func(c *gin.Context) {
		list, err := trackers.List(callerID(c))
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		tracker, err := trackers.Get(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, tracker)
	})

	// Schema-Evolution ist additiv: Spalten können nur hinzukommen.
	rg.PUT("/:id/columns", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Columns          []models.ColumnDefinition `json:"columns" binding:"required"`
			PrimaryKeyColumn string                    `json:"primary_key_column" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		tracker, err := trackers.UpdateColumns(callerID(c), id, req.Columns, req.PrimaryKeyColumn)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, tracker)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := trackers.Delete(callerID(c), id); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "tracker deleted"})
	})
}

func setupRowRoutes(router *gin.RouterGroup, trackers *services.TrackerService, rows *services.RowService, log *zap.Logger) {
	rg := router.Group("/trackers/:id/rows")

	withTracker := func(c *gin.Context) *models.Tracker {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		tracker, err := trackers.Get(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return nil
		}
		return tracker
	}

	rg.GET("/", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		list, err := rows.ListRows(tracker, c.Query("filter_key"), c.Query("filter_value"))
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.POST("/", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		var data map[string]interface{}
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		row, err := rows.AddRow(callerID(c), tracker, data)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, row)
	})

	// Merge-Semantik: nicht gesendete Felder bleiben erhalten.
	rg.PUT("/:rowId", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		var data map[string]interface{}
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		row, err := rows.UpdateRow(callerID(c), tracker, c.Param("rowId"), data)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, row)
	})

	rg.DELETE("/:rowId", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		if err := rows.DeleteRow(tracker, c.Param("rowId")); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "row deleted"})
	})
}

func setupImportRoutes(router *gin.RouterGroup, trackers *services.TrackerService, importer *services.ImportService, log *zap.Logger) {
	rg := router.Group("/trackers/:id/import")

	rg.POST("/", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		tracker, err := trackers.Get(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}

		var req struct {
			Rows []map[string]interface{} `json:"rows" binding:"required"`
			Mode string                   `json:"mode"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		result, err := importer.BulkImport(callerID(c), tracker, req.Rows, req.Mode)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		rowsImportedCounter.Add(float64(result.Imported))
		c.JSON(http.StatusOK, result)
	})
}

func setupAliasRoutes(router *gin.RouterGroup, trackers *services.TrackerService, aliases *services.AliasService, log *zap.Logger) {
	rg := router.Group("/trackers/:id/aliases")

	withTracker := func(c *gin.Context) *models.Tracker {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		tracker, err := trackers.Get(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return nil
		}
		return tracker
	}

	rg.POST("/", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		var req struct {
			Alias string `json:"alias" binding:"required"`
			RowID string `json:"row_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		alias, err := aliases.Add(callerID(c), tracker, req.Alias, req.RowID)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, alias)
	})

	rg.GET("/", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		list, err := aliases.List(tracker)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.DELETE("/:aliasId", func(c *gin.Context) {
		tracker := withTracker(c)
		if tracker == nil {
			return
		}
		aliasID, ok := parseID(c, "aliasId")
		if !ok {
			return
		}
		if err := aliases.Remove(callerID(c), tracker, aliasID); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "alias deleted"})
	})
}

func setupExportRoutes(router *gin.RouterGroup, trackers *services.TrackerService, exporter *services.ExportService, log *zap.Logger) {
	rg := router.Group("/trackers/:id/export.csv")

	rg.GET("/", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		tracker, err := trackers.Get(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}

		data, err := exporter.CSV(tracker)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}

		if c.Query("upload") == "true" {
			link, err := exporter.UploadSnapshot(tracker, data)
			if err != nil {
				log.Error("Snapshot-Upload fehlgeschlagen", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot upload failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"link": link})
			return
		}

		c.Header("Content-Disposition", "attachment; filename="+tracker.Slug+".csv")
		c.Data(http.StatusOK, "text/csv", data)
	})
}

func setupUpdateRoutes(router *gin.RouterGroup, updates *services.UpdateService, log *zap.Logger) {
	rg := router.Group("/updates")

	rg.GET("/", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		records, total, err := updates.List(callerID(c), c.DefaultQuery("view", services.ViewModeActive), page, pageSize)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updates": records, "total": total})
	})

	rg.POST("/:id/approve", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		result, err := updates.Approve(callerID(c), id)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/:id/approve-with-edits", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Proposals []models.UpdateProposal `json:"proposals" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		result, err := updates.ApproveWithEdits(callerID(c), id, req.Proposals)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/:id/reject", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := updates.Reject(callerID(c), id); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "update rejected"})
	})

	rg.POST("/:id/archive", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := updates.Archive(callerID(c), id); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "update archived"})
	})

	rg.POST("/:id/viewed", func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := updates.MarkViewed(callerID(c), id); err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "update marked as viewed"})
	})
}

func setupInboxRoutes(router *gin.RouterGroup, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/inbox")

	rg.POST("/process", func(c *gin.Context) {
		userID := callerID(c)
		go func() {
			result, err := pipeline.Run(context.Background(), userID)
			if err != nil {
				log.Error("Async inbox pipeline failed", zap.Error(err))
			} else {
				updatesCreatedCounter.Add(float64(result.UpdatesCreated))
				log.Info("Async inbox pipeline completed",
					zap.Int("updates_created", result.UpdatesCreated),
					zap.Int("skipped", result.Skipped))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Inbox processing triggered."})
	})
}
