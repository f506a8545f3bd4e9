package publisher

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/executor"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/metrics"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger        zerolog.Logger
	executor      executor.Executor
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	newTransport  TransportCreator
	clientOptions []option.ClientOption
}

func defaultOptions() *options {
	return &options{
		logger:       zerolog.Nop(),
		tracer:       otel.Tracer("go-pubsub-publisher"),
		newTransport: NewPubSubTransport,
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithExecutor sets the executor Close uses for blocking shutdown work.
// Without one, Close fails with ErrPreconditionViolation.
func WithExecutor(exec executor.Executor) Option {
	return func(o *options) { o.executor = exec }
}

// WithMetrics records publish and close outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithTransportCreator replaces the Pub/Sub transport, mostly for tests.
func WithTransportCreator(fn TransportCreator) Option {
	return func(o *options) { o.newTransport = fn }
}

// WithClientOptions passes extra options to the Pub/Sub client. Options from
// the CredentialsProvider are applied after these.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}
