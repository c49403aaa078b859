package ingestion

// Phase names label logs, metrics and spans for each step of an iteration.
const (
	PhasePoll        = "poll"
	PhaseDecode      = "decode"
	PhaseDedupCheck  = "dedup-check"
	PhaseFetch       = "fetch"
	PhaseTransform   = "transform"
	PhaseWrite       = "write"
	PhaseLedgerWrite = "ledger-write"
	PhaseAck         = "ack"
)

const (
	messageAcked       = "acked"
	messageFailed      = "failed"
	messageUndecodable = "decode_error"
	messageTestEvent   = "test_event"

	recordProcessed = "processed"
	recordSkipped   = "skipped"
	recordFailed    = "failed"
)
