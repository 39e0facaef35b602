package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	PostsCreated    prometheus.Counter
	PostsEdited     prometheus.Counter
	CommentsAdded   prometheus.Counter
	FollowRequests  prometheus.Counter
	UnfollowRequest prometheus.Counter
	CacheLookups    *prometheus.CounterVec
}

// InitMetrics builds the collectors on a private registry, so several
// instances can coexist in one process.
func InitMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yatube_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		PostsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yatube_posts_created_total",
			Help: "Total number of successfully created posts",
		}),
		PostsEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yatube_posts_edited_total",
			Help: "Total number of successfully edited posts",
		}),
		CommentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yatube_comments_added_total",
			Help: "Total number of successfully added comments",
		}),
		FollowRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yatube_follows_total",
			Help: "Total number of successful follow requests",
		}),
		UnfollowRequest: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yatube_unfollows_total",
			Help: "Total number of successful unfollow requests",
		}),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yatube_page_cache_lookups_total",
				Help: "Page cache lookups by namespace and result",
			},
			[]string{"namespace", "result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.PostsCreated,
		m.PostsEdited,
		m.CommentsAdded,
		m.FollowRequests,
		m.UnfollowRequest,
		m.CacheLookups,
	)

	return m
}

func (m *Metrics) CacheHit(namespace string) {
	m.CacheLookups.WithLabelValues(namespace, "hit").Inc()
}

func (m *Metrics) CacheMiss(namespace string) {
	m.CacheLookups.WithLabelValues(namespace, "miss").Inc()
}

// Middleware counts requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
