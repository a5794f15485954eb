package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "orderflow/config"
	"orderflow/internal/channel"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/processor"
)

// BookSource exposes the most recent merged book.
type BookSource interface {
	Latest() models.OrderBook
}

// StatsSource exposes fan-out counters.
type StatsSource interface {
	Stats() processor.DistributorStats
}

// Server hosts a JSON status API over the running pipeline: the latest merged
// book, a short spread history, recent log entries and queue counters.
type Server struct {
	cfg        appconfig.DashboardConfig
	appName    string
	log        *logger.Log
	book       BookSource
	stats      StatsSource
	channels   *channel.Channels
	spreads    *history[spreadSample]
	logStore   *logStore
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg *appconfig.Config, log *logger.Log, book BookSource, stats StatsSource, channels *channel.Channels) *Server {
	dcfg := cfg.Dashboard
	if !dcfg.Enabled {
		return nil
	}

	dcfg.Address = normalizeAddress(dcfg.Address)
	if dcfg.RefreshInterval <= 0 {
		dcfg.RefreshInterval = time.Second
	}

	logStore := newLogStore(dcfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:      dcfg,
		appName:  cfg.Orderflow.Name,
		log:      log,
		book:     book,
		stats:    stats,
		channels: channels,
		spreads:  newHistory[spreadSample](dcfg.History),
		logStore: logStore,
	}
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go s.sampleSpread(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	s.logStore.close()
	s.wg.Wait()
}

// Address reports the network address the dashboard listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) sampleSpread(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.recordSpread(now)
		}
	}
}

func (s *Server) recordSpread(now time.Time) {
	if s.book == nil {
		return
	}
	book := s.book.Latest()
	sample := spreadSample{
		Timestamp: now,
		Spread:    book.Spread,
		BidLevels: len(book.Bids),
		AskLevels: len(book.Asks),
	}
	if len(book.Bids) > 0 {
		sample.BestBid = book.Bids[0].Price
	}
	if len(book.Asks) > 0 {
		sample.BestAsk = book.Asks[0].Price
	}
	s.spreads.add(sample)
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": s.appName})
	})

	router.GET("/api/book", func(c *gin.Context) {
		if s.book == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no book source"})
			return
		}
		c.JSON(http.StatusOK, s.book.Latest())
	})

	router.GET("/api/spread", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"samples": s.spreads.snapshot()})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/stats", func(c *gin.Context) {
		payload := gin.H{}
		if s.stats != nil {
			st := s.stats.Stats()
			payload["subscriptions"] = gin.H{
				"active":  st.Active,
				"opened":  st.SubscriptionsOpened,
				"closed":  st.SubscriptionsClosed,
				"lagged":  st.LaggedMessages,
				"publish": st.Published,
			}
		}
		if s.channels != nil {
			cs := s.channels.GetStats()
			payload["queues"] = gin.H{
				"raw":    gin.H{"length": len(s.channels.Raw), "capacity": cap(s.channels.Raw), "sent": cs.RawSent, "high_water": cs.RawHighWater},
				"merged": gin.H{"length": len(s.channels.Merged), "capacity": cap(s.channels.Merged), "sent": cs.MergedSent, "high_water": cs.MergedHighWater},
			}
		}
		c.JSON(http.StatusOK, payload)
	})

	return router
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "127.0.0.1:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil && parsed.Host != "" {
			addr = parsed.Host
		}
	}

	// ":9090" is a bare port; "::1" is an IPv6 host.
	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}
	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
