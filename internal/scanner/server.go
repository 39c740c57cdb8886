package scanner

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"campusconnect/internal/attendance"
	"campusconnect/internal/domain"
	"campusconnect/internal/httpmiddleware"
	"campusconnect/internal/queue"
)

// Server is the kiosk ingress: scanning pages post QR payloads here and the
// worker feeds them to the verifier.
type Server struct {
	Queue    queue.Queue
	Verifier *attendance.Verifier
	Limiter  *httpmiddleware.TokenBucket
	Messages domain.Messages

	SigningKey  string
	Issuer      string
	RequireAuth bool
	// Healthy reports backing service health; nil means always healthy.
	Healthy func(ctx context.Context) bool
}

type scanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger("/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	if s.RequireAuth {
		v1.Use(DeviceAuth(s.SigningKey, s.Issuer))
	}
	if s.Limiter != nil {
		v1.Use(s.Limiter.GinMiddleware())
	}
	v1.POST("/scans", s.postScan)
	v1.GET("/status", s.status)
	return r
}

func (s *Server) postScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"payload\": \"<scanned code>\"}"})
		return
	}
	device := c.GetString(httpmiddleware.DeviceKey)
	if device == "" {
		device = "ip:" + c.ClientIP()
	}

	msg := queue.NewMessage(device, req.Payload)
	if err := s.Queue.Publish(c.Request.Context(), msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrFull) {
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("device", device).Msg("scan publish failed")
		c.JSON(status, gin.H{"error": "scan not queued"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "received_at": msg.ReceivedAt})
}

// status reports the latch state and the last result for the scanning page.
func (s *Server) status(c *gin.Context) {
	body := gin.H{"state": s.Verifier.State().String()}
	if last := s.Verifier.Last(); last != nil {
		result := gin.H{"event_id": last.Scan.EventID, "ok": last.Err == nil}
		if last.Err != nil {
			result["error"] = domain.Code(last.Err)
			result["message"] = s.Messages.ErrorMessage(last.Err)
		} else {
			result["message"] = last.Message
		}
		body["last"] = result
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) healthz(c *gin.Context) {
	healthy := s.Healthy == nil || s.Healthy(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "backend": healthy, "scanner": s.Verifier.State().String()})
}

func requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("http request")
	}
}
