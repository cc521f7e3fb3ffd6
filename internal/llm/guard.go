package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/wwwzy/MongoAgent/internal/errx"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mongoagent_llm_requests_total",
		Help: "LLM calls by result.",
	}, []string{"result"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mongoagent_llm_request_duration_seconds",
		Help:    "Latency of LLM calls, including rate-limit waits.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// guardedModel 对底层模型做令牌桶限速，并把所有失败归类为 LLM_SERVICE_ERROR。
type guardedModel struct {
	inner   model.BaseChatModel
	limiter *rate.Limiter
}

// Guard 包装 m；rps <= 0 时不限速。
func Guard(m model.BaseChatModel, rps float64, burst int) model.BaseChatModel {
	g := &guardedModel{inner: m}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return g
}

func (g *guardedModel) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *guardedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	start := time.Now()
	defer func() { requestDuration.Observe(time.Since(start).Seconds()) }()

	if err := g.wait(ctx); err != nil {
		requestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, errx.New(errx.KindLLMService, err, "the language model is unavailable")
	}
	msg, err := g.inner.Generate(ctx, input, opts...)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, errx.New(errx.KindLLMService, err, "the language model is unavailable")
	}
	if msg == nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, errx.Newf(errx.KindLLMService, "the language model returned no message")
	}
	requestsTotal.WithLabelValues("success").Inc()
	return msg, nil
}

func (g *guardedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := g.wait(ctx); err != nil {
		requestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, errx.New(errx.KindLLMService, err, "the language model is unavailable")
	}
	sr, err := g.inner.Stream(ctx, input, opts...)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, errx.New(errx.KindLLMService, err, "the language model is unavailable")
	}
	requestsTotal.WithLabelValues("success").Inc()
	return sr, nil
}
