package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the election summary
	InfoEndpoint = "/info"
	// CandidatesEndpoint returns the ordered candidates with their tallies
	CandidatesEndpoint = "/candidates"
	// PhaseEndpoint returns the phase predicates at the current ledger time
	PhaseEndpoint = "/phase"
	// CommitmentEndpoint returns the commitment registered by a voter
	AddressURLParam    = "address"
	CommitmentEndpoint = "/voters/{" + AddressURLParam + "}/commitment"
	// NullifierEndpoint returns where a nullifier hash was consumed
	NullifierURLParam = "nullifier"
	NullifierEndpoint = "/nullifiers/{" + NullifierURLParam + "}"
	// TotalVotesEndpoint returns the number of votes cast
	TotalVotesEndpoint = "/votes/total"
	// TransactionsEndpoint is the endpoint for submitting a signed transaction
	TransactionsEndpoint = "/transactions"
	// TransactionEndpoint returns a delivered transaction
	TxHashURLParam      = "hash"
	TransactionEndpoint = "/transactions/{" + TxHashURLParam + "}"
	// BlockEndpoint returns a block header
	HeightURLParam = "height"
	BlockEndpoint  = "/blocks/{" + HeightURLParam + "}"
	// MetricsEndpoint exposes the Prometheus metrics
	MetricsEndpoint = "/metrics"
)
