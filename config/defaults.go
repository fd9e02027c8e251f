package config

import "time"

// These consts are defaults used in Config
const (
	DefaultLogLevel    = "info"
	DefaultListenPort  = 9090
	DefaultBlockPeriod = 5 * time.Second
	DefaultTxsPerBlock = 500
	DefaultMempoolSize = 10000
	DefaultConfigName  = "ballotd"
	DefaultGenesisFile = "candidates.json"
)

// Verifier backends.
const (
	VerifierGroth16    = "groth16"
	VerifierRapidsnark = "rapidsnark"
	// VerifierCanned rejects every proof. Meant only for development
	// networks where votes are not expected.
	VerifierCanned = "canned"
)
