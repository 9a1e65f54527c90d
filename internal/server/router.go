package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/events"
	"github.com/pusulahq/pusula/backend/internal/insight"
	"github.com/pusulahq/pusula/backend/internal/notify"
	"github.com/pusulahq/pusula/backend/internal/payroll"
	"github.com/pusulahq/pusula/backend/internal/store"
	syncengine "github.com/pusulahq/pusula/backend/internal/sync"
	"github.com/pusulahq/pusula/backend/internal/timesheet"
	"go.uber.org/zap"
)

const operatorContextKey = "pusula_operator_id"

var (
	errMissingTokenValidator   = errors.New("token validator dependency required")
	errMissingSyncEngine       = errors.New("sync engine dependency required")
	errMissingERPClient        = errors.New("erp client dependency required")
	errMissingTimesheetService = errors.New("timesheet service dependency required")
	errMissingNotifyService    = errors.New("notification service dependency required")
	errMissingSettingsService  = errors.New("settings service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the API surface to the application services.
type Dependencies struct {
	TokenValidator TokenValidator
	SyncEngine     *syncengine.Engine
	ERPClient      *erp.Client
	Timesheets     *timesheet.Service
	Notifier       *notify.Service
	Settings       *store.SettingsService
	Agent          *insight.Agent
	Events         *events.Dispatcher
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.SyncEngine == nil {
		return nil, errMissingSyncEngine
	}
	if deps.ERPClient == nil {
		return nil, errMissingERPClient
	}
	if deps.Timesheets == nil {
		return nil, errMissingTimesheetService
	}
	if deps.Notifier == nil {
		return nil, errMissingNotifyService
	}
	if deps.Settings == nil {
		return nil, errMissingSettingsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenValidator,
		engine:     deps.SyncEngine,
		erpClient:  deps.ERPClient,
		timesheets: deps.Timesheets,
		notifier:   deps.Notifier,
		settings:   deps.Settings,
		agent:      deps.Agent,
		events:     deps.Events,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync", handler.handleSyncAll)
	protected.POST("/sync/:kind", handler.handleSyncKind)
	protected.GET("/timesheets/:employee", handler.handleTimesheet)
	protected.GET("/payroll/:employee", handler.handlePayroll)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/:id/read", handler.handleMarkRead)
	protected.POST("/notifications/read-all", handler.handleMarkAllRead)
	protected.GET("/settings", handler.handleGetSettings)
	protected.PATCH("/settings", handler.handleUpdateSettings)
	protected.POST("/agent/scan", handler.handleAgentScan)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens     TokenValidator
	engine     *syncengine.Engine
	erpClient  *erp.Client
	timesheets *timesheet.Service
	notifier   *notify.Service
	settings   *store.SettingsService
	agent      *insight.Agent
	events     *events.Dispatcher
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSyncAll(c *gin.Context) {
	results, err := h.engine.SyncAll(c.Request.Context(), h.erpClient)
	if err != nil && !errors.Is(err, syncengine.ErrPartialSync) {
		h.logger.Error("full sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	status := http.StatusOK
	if errors.Is(err, syncengine.ErrPartialSync) {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": results})
}

func (h *httpHandler) handleSyncKind(c *gin.Context) {
	kind, err := store.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_kind"})
		return
	}

	ctx := c.Request.Context()
	var result syncengine.Result
	switch kind {
	case store.KindCustomers:
		result, err = h.engine.SyncCustomers(ctx, h.erpClient.FetchCustomers)
	case store.KindStockItems:
		result, err = h.engine.SyncStockItems(ctx, h.erpClient.FetchStockItems)
	case store.KindWarehouses:
		result, err = h.engine.SyncWarehouses(ctx, h.erpClient.FetchWarehouses)
	case store.KindStockLevels:
		result, err = h.engine.SyncStockLevels(ctx, h.erpClient.FetchStockLevels)
	case store.KindOffers:
		result, err = h.engine.SyncOffers(ctx, h.erpClient.FetchOffers)
	case store.KindIncomingInvoices:
		result, err = h.engine.SyncIncomingInvoices(ctx, h.erpClient.FetchIncomingInvoices)
	case store.KindOutgoingInvoices:
		result, err = h.engine.SyncOutgoingInvoices(ctx, h.erpClient.FetchOutgoingInvoices)
	}
	if err != nil {
		h.logger.Error("sync failed", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleTimesheet(c *gin.Context) {
	employeeID := c.Param("employee")
	year, month, ok := parseYearMonth(c)
	if !ok {
		return
	}

	entries, err := h.timesheets.GenerateMonth(c.Request.Context(), employeeID, year, month)
	if errors.Is(err, timesheet.ErrEmployeeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "employee_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("timesheet generation failed", zap.String("employee_id", employeeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "timesheet_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *httpHandler) handlePayroll(c *gin.Context) {
	employeeID := c.Param("employee")
	year, month, ok := parseYearMonth(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	entries, err := h.timesheets.GenerateMonth(ctx, employeeID, year, month)
	if errors.Is(err, timesheet.ErrEmployeeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "employee_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("payroll timesheet load failed", zap.String("employee_id", employeeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payroll_failed"})
		return
	}

	employee, err := h.timesheets.Employee(ctx, employeeID)
	if err != nil {
		h.logger.Error("payroll employee load failed", zap.String("employee_id", employeeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payroll_failed"})
		return
	}

	record := payroll.Calculate(employee, year, month, entries)
	c.JSON(http.StatusOK, gin.H{"payroll": record})
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	onlyUnread := c.Query("unread") == "true"
	notifications, err := h.notifier.List(c.Request.Context(), onlyUnread)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	err := h.notifier.MarkRead(c.Request.Context(), c.Param("id"))
	if errors.Is(err, notify.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mark_read_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	if err := h.notifier.MarkAllRead(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mark_all_read_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	settings, err := h.settings.GetOrDefault(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_read_failed"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

type settingsUpdatePayload struct {
	CompanyTitle              *string `json:"companyTitle"`
	AgentEnabled              *bool   `json:"agentEnabled"`
	FollowUpEnabled           *bool   `json:"followUpEnabled"`
	FollowUpDays              *int    `json:"followUpDays"`
	AtRiskEnabled             *bool   `json:"atRiskEnabled"`
	AtRiskDays                *int    `json:"atRiskDays"`
	NotificationRetentionDays *int    `json:"notificationRetentionDays"`
}

func (h *httpHandler) handleUpdateSettings(c *gin.Context) {
	var payload settingsUpdatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	fields := map[string]interface{}{}
	if payload.CompanyTitle != nil {
		fields["company_title"] = *payload.CompanyTitle
	}
	if payload.AgentEnabled != nil {
		fields["agent_enabled"] = *payload.AgentEnabled
	}
	if payload.FollowUpEnabled != nil {
		fields["follow_up_enabled"] = *payload.FollowUpEnabled
	}
	if payload.FollowUpDays != nil {
		fields["follow_up_days"] = *payload.FollowUpDays
	}
	if payload.AtRiskEnabled != nil {
		fields["at_risk_enabled"] = *payload.AtRiskEnabled
	}
	if payload.AtRiskDays != nil {
		fields["at_risk_days"] = *payload.AtRiskDays
	}
	if payload.NotificationRetentionDays != nil {
		fields["notification_retention_days"] = *payload.NotificationRetentionDays
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_update"})
		return
	}

	if err := h.settings.Update(c.Request.Context(), fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_update_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAgentScan(c *gin.Context) {
	if h.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent_unavailable"})
		return
	}
	report, err := h.agent.RunScan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan_failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, subject)
	c.Next()
}

func parseYearMonth(c *gin.Context) (int, time.Month, bool) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year < 2000 || year > 2200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_year"})
		return 0, 0, false
	}
	monthValue, err := strconv.Atoi(c.Query("month"))
	if err != nil || monthValue < 1 || monthValue > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_month"})
		return 0, 0, false
	}
	return year, time.Month(monthValue), true
}
