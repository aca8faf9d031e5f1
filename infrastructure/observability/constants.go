package observability

// Metric name prefixes
const (
	MetricPrefix = "lottery"
)

// Metric names
const (
	// Round metrics
	RoundsInitializedTotal = MetricPrefix + ".rounds.initialized_total"
	EntriesTotal           = MetricPrefix + ".entries.total"
	EntryAmount            = MetricPrefix + ".entries.amount"
	PayoutsTotal           = MetricPrefix + ".payouts.total"
	PayoutAmount           = MetricPrefix + ".payouts.amount"

	// Balance metrics
	BalanceTransactionsTotal = MetricPrefix + ".balance.transactions_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"

	// gRPC metrics
	GRPCRequestsTotal   = MetricPrefix + ".grpc.requests_total"
	GRPCRequestDuration = MetricPrefix + ".grpc.request_duration"
)

// Label keys
const (
	LabelType      = "type"
	LabelEventType = "event_type"
	LabelLayout    = "layout"
	LabelVerified  = "verified"
	LabelMethod    = "method"
	LabelCode      = "code"
)
