// Package gateway is the thin HTTP/JSON translator from external requests
// into Scheduler/JobStore operations.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/adaptor"
	promTracer "github.com/hertz-contrib/monitor-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdatta/wappflow/internal/scheduler"
)

// Options configures a Gateway.
type Options struct {
	Bind           string
	RequestTimeout time.Duration
	Registry       *prometheus.Registry
}

// Gateway owns the Hertz HTTP server and translates requests into
// JobStore/Scheduler operations. It holds no scheduling logic of its own.
type Gateway struct {
	store     scheduler.JobStore
	sender    scheduler.MessageSender
	notifier  scheduler.Notifier
	scheduler *scheduler.Scheduler

	httpServer *hzServer.Hertz

	stopOnce sync.Once
}

// New constructs a Gateway and registers every route. Call Start to begin
// serving.
func New(opts Options, store scheduler.JobStore, sender scheduler.MessageSender, notifier scheduler.Notifier, sch *scheduler.Scheduler) *Gateway {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var tracer hzServer.Option
	if opts.Registry != nil {
		tracer = hzServer.WithTracer(promTracer.NewServerTracer("", "", promTracer.WithRegistry(opts.Registry)))
	}

	serverOpts := []hzServer.Option{
		hzServer.WithHostPorts(opts.Bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5 * time.Second),
	}
	if tracer != nil {
		serverOpts = append(serverOpts, tracer)
	}

	hzSvr := hzServer.Default(serverOpts...)

	gw := &Gateway{
		store:      store,
		sender:     sender,
		notifier:   notifier,
		scheduler:  sch,
		httpServer: hzSvr,
	}
	gw.registerRoutes(opts.Registry)
	return gw
}

// Start spawns the HTTP server and the dispatch loop.
func (gw *Gateway) Start(ctx context.Context) {
	gw.scheduler.Start(ctx)
	go gw.httpServer.Spin()
}

// Stop drains the dispatch loop and shuts the HTTP server down gracefully.
func (gw *Gateway) Stop(ctx context.Context) error {
	var stopErr error
	gw.stopOnce.Do(func() {
		gw.scheduler.Stop()
		stopErr = gw.httpServer.Shutdown(ctx)
	})
	return stopErr
}

func (gw *Gateway) registerRoutes(reg *prometheus.Registry) {
	gw.httpServer.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	if reg != nil {
		gw.httpServer.GET("/metrics", adaptor.HertzHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	jobs := gw.httpServer.Group("/jobs")
	jobs.GET("/", gw.listJobs)
	jobs.POST("/", gw.createJob)
	jobs.GET("/:id", gw.getJob)
	jobs.PATCH("/:id", gw.updateJob)
	jobs.POST("/:id/status", gw.setJobStatus)
	jobs.DELETE("/:id", gw.deleteJob)

	gw.httpServer.GET("/history", gw.listHistory)
	gw.httpServer.POST("/instant", gw.sendInstant)
}
