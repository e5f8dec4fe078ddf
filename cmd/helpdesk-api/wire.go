package main

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/assist"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/config"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/conversations"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/database"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/server"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/templates"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/uploads"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newHTTPHandler builds the realtime stack and the services, sharing one Delivery Router
// between the websocket endpoint and every service that pushes events.
func newHTTPHandler(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (http.Handler, error) {
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	realtimeMetrics, err := realtime.NewMetrics(metricsRegistry)
	if err != nil {
		return nil, err
	}
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(realtime.RouterConfig{
		Registry: registry,
		Logger:   logger,
		Metrics:  realtimeMetrics,
	})
	relay, err := realtime.NewRelay(realtime.RelayConfig{
		Router:  router,
		Logger:  logger,
		Metrics: realtimeMetrics,
	})
	if err != nil {
		return nil, err
	}
	socketHandler, err := realtime.NewSocketHandler(realtime.SocketConfig{
		Relay:          relay,
		Logger:         logger,
		Metrics:        realtimeMetrics,
		SendBuffer:     appConfig.RealtimeSendBuffer,
		AllowedOrigins: appConfig.RealtimeAllowedOrigins,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		CookieName:    appConfig.SessionCookieName,
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		return nil, err
	}

	files, err := uploads.NewStore(uploads.Config{Directory: appConfig.UploadsDir})
	if err != nil {
		return nil, err
	}
	idProvider := ids.NewUUIDProvider()

	userService, err := users.NewService(users.ServiceConfig{
		Database:    db,
		Hasher:      auth.NewPasswordHasher(auth.DefaultArgon2Params),
		IDProvider:  idProvider,
		Files:       files,
		Broadcaster: router,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	conversationStore, err := database.NewConversationStore(database.ConversationStoreConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	conversationService, err := conversations.NewService(conversations.ServiceConfig{
		Store:      conversationStore,
		IDProvider: idProvider,
		Notifier:   router,
		Files:      files,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	templateService, err := templates.NewService(templates.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	assistant := assist.NewClient(assist.Config{
		APIKey:  appConfig.AssistAPIKey,
		BaseURL: appConfig.AssistBaseURL,
		Model:   appConfig.AssistModel,
		Logger:  logger,
	})
	if !assistant.Enabled() {
		logger.Info("text assist disabled: no api key configured")
	}

	return server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		Users:          userService,
		Conversations:  conversationService,
		Templates:      templateService,
		Files:          files,
		Assistant:      assistant,
		Realtime:       socketHandler,
		Gatherer:       metricsRegistry,
		AllowedOrigins: appConfig.RealtimeAllowedOrigins,
		Logger:         logger,
	})
}
