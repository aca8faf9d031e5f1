package observability

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"lottery/config"
	"lottery/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "lottery"

// MetricsProvider manages OpenTelemetry metrics for the lottery service
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader // Overrides the configured exporter when set
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	roundsInitializedCounter     metric.Int64Counter
	entriesCounter               metric.Int64Counter
	entryAmountHist              metric.Int64Histogram
	payoutsCounter               metric.Int64Counter
	payoutAmountHist             metric.Int64Histogram
	balanceTransactionsCounter   metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
	grpcRequestsCounter          metric.Int64Counter
	grpcRequestDurationHist      metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// NewMetricsProviderWithReader creates a metrics provider that is always
// enabled and reports to the given reader
func NewMetricsProviderWithReader(cfg *config.Config, reader sdkmetric.Reader) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
		reader: reader,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	reader := mp.reader
	if reader == nil {
		if !mp.config.OTelEnabled {
			log.Info("OpenTelemetry metrics disabled")
			mp.initialized = true
			return nil
		}

		exporter, err := mp.newExporter(ctx)
		if err != nil {
			return err
		}
		if exporter == nil {
			mp.initialized = true
			return nil
		}
		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMS)*time.Millisecond),
		)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter(serviceName)

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// newExporter builds the configured exporter; nil means export is disabled
func (mp *MetricsProvider) newExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")
		return exporter, nil

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")
		return exporter, nil

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.roundsInitializedCounter, err = mp.meter.Int64Counter(
		RoundsInitializedTotal,
		metric.WithDescription("Total number of lottery rounds initialized"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rounds initialized counter: %w", err)
	}

	mp.entriesCounter, err = mp.meter.Int64Counter(
		EntriesTotal,
		metric.WithDescription("Total number of accepted lottery entries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create entries counter: %w", err)
	}

	mp.entryAmountHist, err = mp.meter.Int64Histogram(
		EntryAmount,
		metric.WithDescription("Amount staked per lottery entry"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create entry amount histogram: %w", err)
	}

	mp.payoutsCounter, err = mp.meter.Int64Counter(
		PayoutsTotal,
		metric.WithDescription("Total number of lottery payouts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payouts counter: %w", err)
	}

	mp.payoutAmountHist, err = mp.meter.Int64Histogram(
		PayoutAmount,
		metric.WithDescription("Pool size paid per payout"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payout amount histogram: %w", err)
	}

	mp.balanceTransactionsCounter, err = mp.meter.Int64Counter(
		BalanceTransactionsTotal,
		metric.WithDescription("Total number of balance transactions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance transactions counter: %w", err)
	}

	mp.natsMessagesPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	mp.grpcRequestsCounter, err = mp.meter.Int64Counter(
		GRPCRequestsTotal,
		metric.WithDescription("Total number of gRPC requests handled"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC requests counter: %w", err)
	}

	mp.grpcRequestDurationHist, err = mp.meter.Float64Histogram(
		GRPCRequestDuration,
		metric.WithDescription("Duration of gRPC requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC request duration histogram: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// SubscribeTo records metrics for every event committed on the bus
func (mp *MetricsProvider) SubscribeTo(bus *events.Bus) {
	bus.SubscribeAll(mp.handleEvent)
}

func (mp *MetricsProvider) handleEvent(ctx context.Context, event events.Event) {
	if !mp.isEnabled() {
		return
	}

	switch e := event.(type) {
	case events.RoundInitializedEvent:
		mp.roundsInitializedCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String(LabelLayout, string(e.Layout))))
	case events.PlayerEnteredEvent:
		mp.entriesCounter.Add(ctx, 1)
		mp.entryAmountHist.Record(ctx, clampInt64(e.Amount))
	case events.WinnerPickedEvent:
		mp.payoutsCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool(LabelVerified, e.Verified)))
		mp.payoutAmountHist.Record(ctx, clampInt64(e.Payout))
	case events.BalanceChangeEvent:
		mp.balanceTransactionsCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String(LabelType, string(e.TransactionType))))
	}
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
		),
	)
}

// RecordGRPCRequest records a handled gRPC request
func (mp *MetricsProvider) RecordGRPCRequest(method, code string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelMethod, method),
		attribute.String(LabelCode, code),
	)
	mp.grpcRequestsCounter.Add(context.Background(), 1, attrs)
	mp.grpcRequestDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
