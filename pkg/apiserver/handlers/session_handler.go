package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/model"
	"github.com/doorman/doorman/pkg/store/postgres"
	redisstore "github.com/doorman/doorman/pkg/store/redis"
)

const maxPageSize = 200

type SessionHistory interface {
	GetByGameID(ctx context.Context, gameID string) (*model.SessionRecord, error)
	List(ctx context.Context, scenario *int, limit, offset int) ([]model.SessionRecord, int64, error)
}

type ProgressReader interface {
	ReadProgress(ctx context.Context, sessionID string) (*model.LiveProgress, error)
	LiveSessions(ctx context.Context) ([]string, error)
}

type SessionHandler struct {
	history  SessionHistory
	progress ProgressReader
	logger   *zap.Logger
}

// NewSessionHandler accepts nil for either backend; the matching routes then
// answer 503.
func NewSessionHandler(history SessionHistory, progress ProgressReader, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{history: history, progress: progress, logger: logger}
}

type sessionResponse struct {
	ID                  string                 `json:"id"`
	GameID              string                 `json:"game_id"`
	Scenario            int                    `json:"scenario"`
	Outcome             string                 `json:"outcome"`
	Capacity            int                    `json:"capacity"`
	Admitted            int                    `json:"admitted"`
	Rejected            int                    `json:"rejected"`
	ServerAdmitted      int                    `json:"server_admitted"`
	ServerRejected      int                    `json:"server_rejected"`
	Attributes          []string               `json:"attributes"`
	Counts              map[string]interface{} `json:"counts"`
	Minimums            map[string]interface{} `json:"minimums"`
	RejectedByAttribute map[string]interface{} `json:"rejected_by_attribute,omitempty"`
	RuleHits            map[string]interface{} `json:"rule_hits,omitempty"`
	Reason              string                 `json:"reason,omitempty"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	StartedAt           string                 `json:"started_at"`
	FinishedAt          *string                `json:"finished_at,omitempty"`
}

func mapSession(record *model.SessionRecord) sessionResponse {
	return sessionResponse{
		ID:                  record.ID.String(),
		GameID:              record.GameID,
		Scenario:            record.Scenario,
		Outcome:             string(record.Outcome),
		Capacity:            record.Capacity,
		Admitted:            record.Admitted,
		Rejected:            record.Rejected,
		ServerAdmitted:      record.ServerAdmitted,
		ServerRejected:      record.ServerRejected,
		Attributes:          []string(record.Attributes),
		Counts:              map[string]interface{}(record.Counts),
		Minimums:            map[string]interface{}(record.Minimums),
		RejectedByAttribute: map[string]interface{}(record.RejectedByAttribute),
		RuleHits:            map[string]interface{}(record.RuleHits),
		Reason:              record.Reason,
		ErrorMessage:        record.ErrorMessage,
		StartedAt:           record.StartedAt.UTC().Format(timeRFC3339Nano),
		FinishedAt:          formatTime(record.FinishedAt),
	}
}

func (h *SessionHandler) List(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session history is disabled"})
		return
	}

	scenario, ok := parseScenario(strings.TrimSpace(c.Query("scenario")))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scenario"})
		return
	}
	limit := parseLimit(c.Query("limit"), 20)
	offset := parseOffset(c.Query("offset"))

	records, total, err := h.history.List(c.Request.Context(), scenario, limit, offset)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	response := make([]sessionResponse, 0, len(records))
	for i := range records {
		response = append(response, mapSession(&records[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": response,
		"total":    total,
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session history is disabled"})
		return
	}

	record, err := h.history.GetByGameID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, postgres.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("failed to get session", zap.String("session_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	c.JSON(http.StatusOK, mapSession(record))
}

func (h *SessionHandler) Live(c *gin.Context) {
	if h.progress == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live progress is disabled"})
		return
	}

	ids, err := h.progress.LiveSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list live sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list live sessions"})
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

func (h *SessionHandler) Progress(c *gin.Context) {
	if h.progress == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live progress is disabled"})
		return
	}

	progress, err := h.progress.ReadProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, redisstore.ErrProgressNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "progress not found"})
			return
		}
		h.logger.Error("failed to read progress", zap.String("session_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read progress"})
		return
	}

	c.JSON(http.StatusOK, progress)
}
