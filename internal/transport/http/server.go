package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/satter0827/market-decision-engine/internal/store"
)

// 中文说明：
// 只读查询 API：对外暴露历史批跑与决策，数据全部来自 run store。
// 不提供任何写入口，落库只发生在批跑流程内。

// Server 提供决策查询的 HTTP API。
type Server struct {
	addr      string
	runs      *store.RunStore
	reportDir string
	router    *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr      string
	Runs      *store.RunStore
	ReportDir string
}

// NewServer 构建查询 Server。ReportDir 非空时以静态目录挂载在 /reports 下。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runs == nil {
		return nil, errors.New("run store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		runs:      cfg.Runs,
		reportDir: strings.TrimSpace(cfg.ReportDir),
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/decisions", s.handleDecisionList)

	if s.reportDir != "" {
		s.router.Static("/reports", s.reportDir)
	}
}

// Handler 暴露底层路由，便于嵌入测试或外层复用。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), c.Query("market"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	res, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": res})
}

func (s *Server) handleDecisionList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	decisions, err := s.runs.ListDecisions(c.Request.Context(), store.DecisionQuery{
		RunID:  c.Query("run_id"),
		Ticker: c.Query("ticker"),
		Market: c.Query("market"),
		Signal: c.Query("signal"),
		Limit:  limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
