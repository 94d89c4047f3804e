// Package server exposes the pipeline as an HTTP-triggered function.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BartekS5/ticketflow/internal/etl"
	"github.com/BartekS5/ticketflow/pkg/ledger"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/models"
)

const (
	successMessage = "ETL pipeline executed successfully"
	failurePrefix  = "ETL pipeline failed: "
)

// Runner executes one full pipeline run.
type Runner interface {
	Run(ctx context.Context, trigger string) (*models.RunReport, error)
}

type Server struct {
	e      *echo.Echo
	runner Runner
	ledger ledger.Ledger
	addr   string
}

func New(runner Runner, l ledger.Ledger, port int) *Server {
	if l == nil {
		l = ledger.Nop{}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{e: e, runner: runner, ledger: l, addr: ":" + strconv.Itoa(port)}
	e.GET("/", s.trigger)
	e.POST("/", s.trigger)
	e.GET("/healthz", s.health)
	e.GET("/runs", s.runs)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP trigger listening on %s", s.addr)
		errCh <- s.e.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

func (s *Server) trigger(c echo.Context) error {
	report, err := s.runner.Run(c.Request().Context(), "http")
	if report != nil {
		c.Response().Header().Set("X-Run-ID", report.RunID)
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, failurePrefix+err.Error())
	}
	logger.Info(etl.Summary(report))
	return c.String(http.StatusOK, successMessage)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runs(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid limit %q", v)})
		}
		limit = n
	}
	reports, err := s.ledger.Recent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if reports == nil {
		reports = []models.RunReport{}
	}
	return c.JSON(http.StatusOK, reports)
}
