package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/health"
	"github.com/kapu/youtube-quota-broker-go/internal/service/admission"
	"github.com/kapu/youtube-quota-broker-go/internal/service/broker"
	"github.com/kapu/youtube-quota-broker-go/internal/service/cache"
	"github.com/kapu/youtube-quota-broker-go/internal/service/profiler"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
)

// APIHandler: 브로커 상태/판정 조회 API를 처리하는 핸들러
// 판정 엔드포인트는 조회 전용이며 쿼터를 소비하지 않는다.
type APIHandler struct {
	ledger    *quota.Ledger
	admission *admission.Controller
	broker    *broker.Broker
	profiler  *profiler.Profiler
	cache     *cache.Service
	logger    *slog.Logger
}

// NewAPIHandler: 새로운 API 핸들러를 생성한다.
func NewAPIHandler(
	ledger *quota.Ledger,
	admissionCtrl *admission.Controller,
	brokerSvc *broker.Broker,
	profilerSvc *profiler.Profiler,
	cacheSvc *cache.Service,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		ledger:    ledger,
		admission: admissionCtrl,
		broker:    brokerSvc,
		profiler:  profilerSvc,
		cache:     cacheSvc,
		logger:    logger,
	}
}

// HandleHealth: GET /health
func (h *APIHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, health.Get())
}

// HandleQuotaStatusAll: GET /api/quota/status
func (h *APIHandler) HandleQuotaStatusAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"activeSet":  h.broker.ActiveSet(),
		"exclusions": h.broker.Exclusions(),
		"sets":       h.ledger.Snapshot(),
	})
}

// HandleQuotaStatus: GET /api/quota/status/:setId
func (h *APIHandler) HandleQuotaStatus(c *gin.Context) {
	status, err := h.ledger.Status(c.Param("setId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// admissionCheckRequest 는 타입이다.
type admissionCheckRequest struct {
	Operation string `json:"operation" binding:"required"`
	SetID     string `json:"setId" binding:"required"`
	Count     int    `json:"count"`
	Force     bool   `json:"force"`
}

// HandleAdmissionCheck: POST /api/admission/check
func (h *APIHandler) HandleAdmissionCheck(c *gin.Context) {
	var req admissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision := h.admission.CanAdmit(req.Operation, req.SetID, req.Count, req.Force)
	c.JSON(http.StatusOK, decision)
}

// batchPlanRequest 는 타입이다.
type batchPlanRequest struct {
	SetID    string                `json:"setId" binding:"required"`
	Requests []domain.BatchRequest `json:"requests" binding:"required"`
}

// HandleBatchPlan: POST /api/admission/plan
func (h *APIHandler) HandleBatchPlan(c *gin.Context) {
	var req batchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan := h.admission.PlanBatch(req.Requests, req.SetID)
	c.JSON(http.StatusOK, plan)
}

// HandleRotationAdvice: GET /api/rotation/advice
func (h *APIHandler) HandleRotationAdvice(c *gin.Context) {
	recommended, _ := h.profiler.RecommendBestSet(h.ledger.Views())
	c.JSON(http.StatusOK, gin.H{
		"activeSet":      h.broker.ActiveSet(),
		"decision":       h.broker.Advise(),
		"recommendedSet": recommended,
	})
}

// HandleProfile: GET /api/profiles/:setId
func (h *APIHandler) HandleProfile(c *gin.Context) {
	profile, ok := h.profiler.Profile(c.Param("setId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile recorded for set"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// HandleRecentEvents: GET /api/events/recent
func (h *APIHandler) HandleRecentEvents(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event cache not configured"})
		return
	}

	events, err := h.cache.RecentEvents(c.Request.Context(), 0)
	if err != nil {
		h.logger.Error("Failed to load recent events", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
