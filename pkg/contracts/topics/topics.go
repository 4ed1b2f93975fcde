package topics

const (
	// Feed do provedor (normalizado)
	FeedEvents = "feed_events"

	// Liquidação
	SettlementJobs = "settlement_jobs"

	// DLQs
	FeedEventsDLQ     = "feed_events_dlq"
	SettlementJobsDLQ = "settlement_jobs_dlq"
)

// Canal Redis Pub/Sub dos updates em tempo real.
const UpdatesChannel = "wager_updates_broadcast"
