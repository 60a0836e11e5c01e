package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, sessions SessionSource) {
	router.GET("/", handleIndex(db, sessions))
	router.GET("/api/overview", handleOverview(db, sessions))
	router.GET("/api/sessions", handleSessionList(db))
	router.GET("/api/sessions/:id", handleSessionDetail(db))
	router.GET("/api/events", handleSSE(sessions))
}

func handleIndex(db *gorm.DB, sessions SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ov := BuildOverview(db, sessions)
		recent, err := RecentSessions(db, 20)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		c.HTML(http.StatusOK, "index", gin.H{
			"ActiveSessions": ov.ActiveSessions,
			"ActiveChannels": ov.ActiveChannels,
			"ArchiveEnabled": db != nil,
			"TotalSessions":  ov.TotalSessions,
			"TotalMessages":  ov.TotalMessages,
			"Recent":         recent,
		})
	}
}

func handleOverview(db *gorm.DB, sessions SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, BuildOverview(db, sessions))
	}
}

func handleSessionList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := RecentSessions(db, 100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleSessionDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetSessionDetail(db, c.Param("id"))
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}
