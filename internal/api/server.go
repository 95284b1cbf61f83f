// Package api HTTP 接口（gin）
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/internal/journal"
	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/internal/registry"
	"github.com/betbot/msubot/internal/scheduler"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

// Version 服务版本
const Version = "1.0.0"

// OrderLog 下单记录查询
type OrderLog interface {
	Recent(ctx context.Context, identity string, limit int) ([]journal.Entry, error)
}

// JobStatus 定时任务状态
type JobStatus interface {
	Status() []scheduler.JobStatus
}

// Options 服务配置
type Options struct {
	Registry            *registry.Registry
	PrivateKey          string
	RequireConfirmation bool
	Journal             OrderLog  // 可选
	Scheduler           JobStatus // 可选
}

// Server HTTP 服务
type Server struct {
	opts Options
	log  *logrus.Entry
}

// New 创建服务
func New(opts Options) *Server {
	return &Server{opts: opts, log: logrus.WithField("component", "api")}
}

// Router 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	v1 := r.Group("/api/v1")
	v1.GET("/order", s.handleOrder)
	v1.GET("/sell", s.handleSell)
	v1.GET("/health", s.handleHealth)
	v1.GET("/orders/recent", s.handleRecentOrders)
	v1.GET("/proxy", s.handleProxyInfo)
	v1.POST("/proxy", s.handleProxySwitch)

	r.GET("/debug/vars", gin.WrapH(metrics.Handler()))
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

// StatusFor 错误码对应的 HTTP 状态码
func StatusFor(code types.Code) int {
	switch code {
	case types.CodeInvalidParameters, types.CodeSecurityCheckFailed:
		return http.StatusBadRequest
	case types.CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case types.CodeRateLimited:
		return http.StatusTooManyRequests
	case types.CodeRequestBlocked:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *Server) writeResult(c *gin.Context, res types.OrderResult) {
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(StatusFor(res.Code), res)
}

func writeError(c *gin.Context, status int, code types.Code, msg string) {
	c.JSON(status, types.OrderResult{Success: false, Message: msg, Code: code})
}

func (s *Server) place(c *gin.Context, req types.OrderRequest) {
	if s.opts.PrivateKey == "" {
		writeError(c, http.StatusInternalServerError, types.CodeMissingPrivateKey, "服务器配置错误：未设置 PRIVATE_KEY 环境变量")
		return
	}
	req.ConfirmRealOrder = req.ConfirmRealOrder || !s.opts.RequireConfirmation
	s.writeResult(c, s.opts.Registry.PlaceOrder(c.Request.Context(), s.opts.PrivateKey, req))
}

// GET /api/v1/order?nft_token_id=&order_type=market|limit&amount=&price_wei=&created_at_ts=&confirm_real_order=
func (s *Server) handleOrder(c *gin.Context) {
	var req types.OrderRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: "+err.Error())
		return
	}
	if req.NFTTokenID == "" {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: nft_token_id 不能为空")
		return
	}
	if req.OrderType == "" {
		req.OrderType = types.OrderTypeMarket
	}
	if !req.OrderType.Valid() {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: 不支持的 order_type "+string(req.OrderType))
		return
	}
	s.place(c, req)
}

// GET /api/v1/sell?nft_token_id=&price_wei=&confirm_real_order=
func (s *Server) handleSell(c *gin.Context) {
	var req types.OrderRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: "+err.Error())
		return
	}
	if req.NFTTokenID == "" || req.PriceWei == "" {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: nft_token_id 和 price_wei 不能为空")
		return
	}
	req.OrderType = types.OrderTypeSell
	s.place(c, req)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"engines":   s.opts.Registry.Len(),
		"counters":  metrics.Snapshot(),
	}
	if s.opts.Scheduler != nil {
		body["jobs"] = s.opts.Scheduler.Status()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecentOrders(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusOK, gin.H{"orders": []journal.Entry{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.opts.Journal.Recent(c.Request.Context(), c.Query("identity"), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, types.CodeUnknown, err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": entries})
}

func (s *Server) handleProxyInfo(c *gin.Context) {
	e, err := s.opts.Registry.GetOrCreate(c.Request.Context(), s.opts.PrivateKey)
	if err != nil {
		code := types.CodeOf(err)
		writeError(c, StatusFor(code), code, err.Error())
		return
	}
	c.JSON(http.StatusOK, e.ProxyInfo())
}

// POST /api/v1/proxy?enabled=true|false
func (s *Server) handleProxySwitch(c *gin.Context) {
	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		writeError(c, http.StatusBadRequest, types.CodeInvalidParameters, "参数错误: enabled 必须为 true 或 false")
		return
	}
	e, err := s.opts.Registry.GetOrCreate(c.Request.Context(), s.opts.PrivateKey)
	if err != nil {
		code := types.CodeOf(err)
		writeError(c, StatusFor(code), code, err.Error())
		return
	}
	if err := e.SetProxyEnabled(enabled); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transport.ErrUnsupported) {
			status = http.StatusNotImplemented
		}
		writeError(c, status, types.CodeUnknown, err.Error())
		return
	}
	c.JSON(http.StatusOK, e.ProxyInfo())
}
