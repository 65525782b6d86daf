// Package httpapi is the transport adapter: it translates HTTP requests
// into account service calls and service errors into wire responses.
// Status-code mapping lives here and nowhere else.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/userapi/internal/logging"
	"github.com/dmitrijs2005/userapi/internal/server/config"
	"github.com/dmitrijs2005/userapi/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address string
	logger  logging.Logger
	service *services.AccountService
	metrics *Metrics
	limiter *LoginLimiter
}

func NewServer(cfg *config.Config, l logging.Logger, svc *services.AccountService, m *Metrics) *Server {
	return &Server{
		address: cfg.EndpointAddr,
		logger:  l.With("module", "http_server"),
		service: svc,
		metrics: m,
		limiter: NewLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst),
	}
}

func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		s.limiter.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
