package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/washtrade-engine/internal/arkham"
	"github.com/rawblock/washtrade-engine/internal/db"
	"github.com/rawblock/washtrade-engine/internal/engine"
	"github.com/rawblock/washtrade-engine/internal/report"
	"github.com/rawblock/washtrade-engine/pkg/models"
)

type APIHandler struct {
	dbStore  *db.PostgresStore
	provider *arkham.Client
	wsHub    *Hub
}

// AnalyzeRequest carries a transfer snapshot and optional threshold
// overrides for one analysis run.
type AnalyzeRequest struct {
	Token     string            `json:"token"`
	Chain     string            `json:"chain"`
	Transfers []models.Transfer `json:"transfers"`
	Config    *engine.Config    `json:"config,omitempty"`
}

// CollectRequest asks the service to pull transfers from the provider
// and analyze them in one shot.
type CollectRequest struct {
	Chains   string         `json:"chains"`
	Tokens   string         `json:"tokens"`
	TimeLast string         `json:"timeLast"` // e.g. "7d", "30d"
	USDGte   float64        `json:"usdGte,omitempty"`
	MaxTotal int            `json:"maxTotal,omitempty"`
	Config   *engine.Config `json:"config,omitempty"`
}

func SetupRouter(dbStore *db.PostgresStore, provider *arkham.Client, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://dashboard.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{dbStore: dbStore, provider: provider, wsHub: wsHub}
	analyzeLimiter := NewRateLimiter(30, 5)

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		protected := api.Group("", AuthMiddleware())
		{
			protected.POST("/analyze", analyzeLimiter.Middleware(), handler.handleAnalyze)
			protected.POST("/collect", analyzeLimiter.Middleware(), handler.handleCollect)
			protected.GET("/runs", handler.handleListRuns)
			protected.GET("/runs/:id", handler.handleGetRun)
			protected.GET("/runs/:id/report.csv", handler.handleRunReportCSV)
		}
	}

	return r
}

// handleAnalyze runs the detection engine over the posted snapshot,
// persists the run when a store is attached, and broadcasts
// high-severity findings to the dashboard stream.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	h.runAnalysis(c, req.Token, req.Chain, req.Transfers, req.Config)
}

// handleCollect pulls transfers from the provider before analyzing.
func (h *APIHandler) handleCollect(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Provider client is not configured, set ARKHAM_API_KEY"})
		return
	}

	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Chains == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chains is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()
	transfers, err := h.provider.FetchTransfers(ctx, arkham.TransferQuery{
		Chains:   req.Chains,
		Tokens:   req.Tokens,
		TimeLast: req.TimeLast,
		USDGte:   req.USDGte,
		MaxTotal: req.MaxTotal,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Transfer collection failed: " + err.Error()})
		return
	}

	h.runAnalysis(c, req.Tokens, req.Chains, transfers, req.Config)
}

// runAnalysis runs the engine, persists the run when a store is
// attached, broadcasts high-severity findings, and writes the response.
func (h *APIHandler) runAnalysis(c *gin.Context, token, chain string, transfers []models.Transfer, override *engine.Config) {
	cfg := engine.DefaultConfig()
	if override != nil {
		cfg = *override
	}

	start := time.Now()
	result, err := engine.Analyze(transfers, cfg)
	if err != nil {
		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New()
	if h.dbStore != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		if err := h.dbStore.SaveAnalysisResult(ctx, runID, token, chain, result); err != nil {
			log.Printf("Warning: failed to persist analysis run %s: %v", runID, err)
		}
	}

	BroadcastHighSeverityFindings(h.wsHub, runID.String(), token, result)

	log.Printf("Analysis run %s: %d transfers, %d findings in %s",
		runID, result.Summary.TotalTransfers, len(result.Findings), time.Since(start).Round(time.Millisecond))

	c.JSON(http.StatusOK, gin.H{
		"runId":  runID.String(),
		"result": result,
	})
}

func (h *APIHandler) handleListRuns(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.dbStore.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *APIHandler) handleGetRun(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleRunReportCSV exports a stored run's findings as CSV.
func (h *APIHandler) handleRunReportCSV(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=findings_"+run.RunID+".csv")
	if err := report.WriteFindingsCSV(c.Writer, run.Findings); err != nil {
		log.Printf("Failed to write CSV report: %v", err)
	}
}

func (h *APIHandler) loadRun(c *gin.Context) (*db.StoredRun, bool) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return nil, false
	}
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return nil, false
	}
	run, err := h.dbStore.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return nil, false
	}
	return run, true
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"persistence": h.dbStore != nil,
	})
}
