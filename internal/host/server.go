package host

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/durable/internal/auth"
	"github.com/danmuck/durable/internal/object"
	"github.com/danmuck/durable/internal/observability"
	"github.com/danmuck/durable/internal/protocol/frame"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ContentType marks request and reply frame bodies.
const ContentType = "application/x-durable-frame"

const version = "0.1.0"

// Server exposes a Host over HTTP.
type Server struct {
	Host     *Host
	Addr     string
	Appeared time.Time

	router    *gin.Engine
	validator auth.Validator
	certFile  string
	keyFile   string
}

type ServerOption func(*Server)

// WithAuth requires a bearer token accepted by v on the object routes.
func WithAuth(v auth.Validator) ServerOption {
	return func(s *Server) { s.validator = v }
}

// WithTLS serves HTTPS from the given PEM files.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

func NewServer(h *Host, addr string, opts ...ServerOption) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(h.ID))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Host:     h,
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"host":    s.Host.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/bindings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"bindings": s.Host.Registry().ListMetadata(),
		})
	})

	objects := s.router.Group("/objects")
	if s.validator != nil {
		objects.Use(requireToken(s.validator))
	}

	objects.POST("/:binding/:id", func(c *gin.Context) {
		raw, err := readFrame(c)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		reply, err := s.Host.Serve(c.Request.Context(), c.Param("binding"), c.Param("id"), raw)
		s.writeReply(c, reply, err)
	})

	objects.POST("/:binding/:id/alarm", func(c *gin.Context) {
		reply, err := s.Host.Alarm(c.Request.Context(), c.Param("binding"), c.Param("id"))
		s.writeReply(c, reply, err)
	})
}

// Handler serves HTTP/1.1 and cleartext HTTP/2 on the same listener.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.router, &http2.Server{})
}

func (s *Server) Serve() error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.certFile != "" {
		log.Info().Msgf("host.Server.Serve addr=%s tls=true bindings=%d", s.Addr, len(s.Host.Registry().ListMetadata()))
		return srv.ListenAndServeTLS(s.certFile, s.keyFile)
	}
	log.Info().Msgf("host.Server.Serve addr=%s tls=false bindings=%d", s.Addr, len(s.Host.Registry().ListMetadata()))
	return srv.ListenAndServe()
}

func (s *Server) writeReply(c *gin.Context, reply Reply, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrBindingNotFound):
			status = http.StatusNotFound
		case errors.Is(err, object.ErrInvalidID):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Set(observability.ResultKey, reply.Result())
	c.Data(StatusFor(reply.Err), ContentType, reply.Frame)
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || v.Validate(token) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

func readFrame(c *gin.Context) ([]byte, error) {
	limit := int64(frame.DefaultLimits().MaxPayloadBytes) + int64(frame.FixedHeaderLen)
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	defer body.Close()
	return io.ReadAll(body)
}
