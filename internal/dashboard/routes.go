package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/peakwatch/internal/models"
	"github.com/zulandar/peakwatch/internal/store"
	"github.com/zulandar/peakwatch/internal/tracker"
)

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, sup *tracker.Supervisor, st *store.Store, notifyBackends []string) {
	router.GET("/", handleIndex())

	api := router.Group("/api")
	api.POST("/start", handleStart(sup))
	api.GET("/status/:id", handleStatus(sup))
	api.POST("/stop/:id", handleStop(sup))
	api.GET("/stream/:id", handleStream(sup))
	api.GET("/history", handleHistory(st))
	api.GET("/session/:id", handleSessionDetail(st))
	api.GET("/notify-available", handleNotifyAvailable(notifyBackends))
}

// handleNotifyAvailable reports which report delivery backends are
// configured, so the UI can hide the notify field when none are.
func handleNotifyAvailable(backends []string) gin.HandlerFunc {
	if backends == nil {
		backends = []string{}
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"available": len(backends) > 0,
			"backends":  backends,
		})
	}
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{})
	}
}

// startRequest is the body of POST /api/start.
type startRequest struct {
	URL          string `json:"url"`
	NotifyTarget string `json:"notify_target"`
	Interval     int    `json:"interval"`
}

func handleStart(sup *tracker.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		sess, err := sup.Start(c.Request.Context(), tracker.StartOpts{
			URL:          req.URL,
			NotifyTarget: req.NotifyTarget,
			PollInterval: req.Interval,
		})
		if err != nil {
			if errors.Is(err, tracker.ErrInvalidURL) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "please provide a valid stream URL"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sess.ID})
	}
}

func handleStatus(sup *tracker.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := sup.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sessionPayloadFrom(state))
	}
}

func handleStop(sup *tracker.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sup.Stop(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session is not active"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleHistory(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := st.ListRecent(20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleSessionDetail(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, history, err := st.GetSession(c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sessionPayloadFrom(&tracker.SessionState{
			Session: *rec,
			History: history,
		}))
	}
}

// sessionPayload is the wire shape of a session for the status, detail and
// stream endpoints.
type sessionPayload struct {
	SessionID        string          `json:"session_id"`
	URL              string          `json:"url"`
	Title            string          `json:"title"`
	Channel          string          `json:"channel"`
	Thumbnail        string          `json:"thumbnail"`
	Status           string          `json:"status"`
	Message          string          `json:"message"`
	CurrentViewers   int             `json:"current_viewers"`
	MaxViewers       int             `json:"max_viewers"`
	MaxViewersTime   string          `json:"max_viewers_time,omitempty"`
	StartTime        string          `json:"start_time,omitempty"`
	NotificationSent bool            `json:"notification_sent"`
	Live             bool            `json:"live"`
	History          []samplePayload `json:"history"`
}

// samplePayload is one history point on the wire; times render as
// wall-clock HH:MM:SS like the live chart expects.
type samplePayload struct {
	Time    string `json:"time"`
	Viewers int    `json:"viewers"`
}

func sessionPayloadFrom(state *tracker.SessionState) sessionPayload {
	p := sessionPayload{
		SessionID:        state.Session.ID,
		URL:              state.Session.URL,
		Title:            state.Session.Title,
		Channel:          state.Session.Channel,
		Thumbnail:        state.Session.Thumbnail,
		Status:           state.Session.Status,
		Message:          state.Session.Message,
		CurrentViewers:   state.Session.CurrentViewers,
		MaxViewers:       state.Session.MaxViewers,
		NotificationSent: state.Session.NotificationSent,
		Live:             state.Live,
		History:          make([]samplePayload, 0, len(state.History)),
	}
	if state.Session.MaxViewersTime != nil {
		p.MaxViewersTime = state.Session.MaxViewersTime.Format("15:04:05")
	}
	if state.Session.StartTime != nil {
		p.StartTime = state.Session.StartTime.Format("2006-01-02 15:04:05")
	}
	for _, h := range state.History {
		p.History = append(p.History, samplePayload{
			Time:    h.Time.Format("15:04:05"),
			Viewers: h.Viewers,
		})
	}
	return p
}

// terminal reports whether a payload's status permits no further updates.
func (p sessionPayload) terminal() bool {
	return models.Terminal(p.Status)
}
