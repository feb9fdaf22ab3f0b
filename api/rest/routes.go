package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	mw "github.com/ClementNoelRenard/Running-Map-Run-For-Life/middleware"
)

// Handlers groups the REST handlers mounted under /api.
type Handlers struct {
	Sessions *SessionHandler
	Ranking  *RankingHandler
	Admin    *AdminHandler
}

// Mount registers every REST route on api.
func Mount(api *gin.RouterGroup, h Handlers, sec config.SecurityConfig, c cache.Cache, adminIPs []string) {
	api.POST("/sessions", h.Sessions.Create)

	sess := api.Group("/sessions/:id", mw.SessionAuth(sec, c))
	sess.GET("", h.Sessions.Get)
	sess.GET("/geojson", h.Sessions.GeoJSON)
	sess.POST("/position", h.Sessions.Position)
	sess.POST("/pause", h.Sessions.Pause)
	sess.POST("/resume", h.Sessions.Resume)
	sess.POST("/abort", h.Sessions.Abort)
	sess.POST("/restart", h.Sessions.Restart)
	sess.DELETE("", h.Sessions.Delete)

	rank := api.Group("/ranking")
	rank.GET("/fastest", h.Ranking.Fastest)
	rank.GET("/recent", h.Ranking.Recent)

	admin := api.Group("/admin", mw.IPWhitelist(adminIPs))
	admin.GET("/metrics", h.Admin.Metrics)
	admin.GET("/sessions", h.Admin.ListSessions)
	admin.DELETE("/sessions/:id", h.Admin.KillSession)
	admin.POST("/ranking/rebuild", h.Admin.RebuildRanking)
	admin.POST("/announce", h.Admin.Announce)
	admin.GET("/scheduler", h.Admin.ListSchedulerTasks)
	admin.POST("/scheduler/:name/run", h.Admin.RunSchedulerTask)
}
