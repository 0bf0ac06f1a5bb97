// Package api exposes the ledger over HTTP using gin. Routes are
// grouped by resource; everything except registration, login and the
// operational endpoints requires a bearer token.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splitbook/splitbook/internal/auth"
	"github.com/splitbook/splitbook/internal/service"
)

// Server bundles the handlers' dependencies.
type Server struct {
	auth       auth.Authenticator
	jwtManager *auth.JWTManager
	groups     *service.GroupService
	reconcile  *service.ReconcileService
}

// NewServer creates a Server over the given services.
func NewServer(authenticator auth.Authenticator, jwtManager *auth.JWTManager, groups *service.GroupService, reconcile *service.ReconcileService) *Server {
	return &Server{
		auth:       authenticator,
		jwtManager: jwtManager,
		groups:     groups,
		reconcile:  reconcile,
	}
}

// Router builds the gin engine with middleware and all routes mounted.
func (s *Server) Router(corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), observeLatency())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", s.register)
	v1.POST("/auth/login", s.login)

	authed := v1.Group("", requireAuth(s.jwtManager))

	groups := authed.Group("/groups")
	groups.POST("", s.createGroup)
	groups.GET("", s.listGroups)
	groups.GET("/:groupId", s.getGroup)
	groups.PATCH("/:groupId", s.renameGroup)
	groups.DELETE("/:groupId", s.deleteGroup)
	groups.POST("/:groupId/members", s.addMember)
	groups.DELETE("/:groupId/members/:memberId", s.removeMember)

	groups.GET("/:groupId/balances", s.balances)
	groups.GET("/:groupId/balances/watch", s.watchBalances)
	groups.GET("/:groupId/report", s.report)

	txns := groups.Group("/:groupId/transactions")
	txns.POST("", s.submitTransaction)
	txns.GET("", s.listTransactions)
	txns.GET("/:txnId", s.getTransaction)
	txns.PATCH("/:txnId", s.editTransaction)
	txns.DELETE("/:txnId", s.deleteTransaction)
	txns.POST("/:txnId/accept", s.acceptTransaction)
	txns.POST("/:txnId/reject", s.rejectTransaction)
	txns.POST("/:txnId/re-request", s.reRequestTransaction)
	txns.POST("/:txnId/archive", s.archiveTransaction)
	txns.POST("/:txnId/unarchive", s.unarchiveTransaction)

	return r
}
