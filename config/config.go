// Package config holds the node configuration and the genesis file of an
// election.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/db"
)

// Config stores the configuration of a ballot node.
type Config struct {
	// DataDir is the directory where the database and the config file are stored.
	DataDir string
	// DBType is the database backend (pebble or memory).
	DBType string
	// LogLevel logging level
	LogLevel string
	// LogOutput is stdout, stderr or a file path.
	LogOutput string
	// LogErrorFile optionally receives a copy of warnings and errors.
	LogErrorFile string
	// Admin is the address allowed to add candidates and set the voting period.
	Admin string
	// AdminKey is the optional private key of the admin, used by tooling.
	AdminKey string
	// ListenHost is the host the HTTP API binds to.
	ListenHost string
	// ListenPort is the port of the HTTP API.
	ListenPort int
	// BlockPeriod is the time between blocks.
	BlockPeriod time.Duration
	// TxsPerBlock is the maximum number of transactions per block.
	TxsPerBlock int
	// MempoolSize is the capacity of the transaction queue.
	MempoolSize int
	// Verifier selects the proof verification backend (groth16, rapidsnark).
	Verifier string
	// VerificationKey is the path to the snarkjs verification_key.json.
	VerificationKey string
	// Genesis is the path to the genesis (candidates) file.
	Genesis string
	// Metrics enables the /metrics endpoint.
	Metrics bool
}

// Default returns a Config with the default values set.
func Default() *Config {
	return &Config{
		DBType:      db.TypePebble,
		LogLevel:    DefaultLogLevel,
		LogOutput:   "stdout",
		ListenHost:  "0.0.0.0",
		ListenPort:  DefaultListenPort,
		BlockPeriod: DefaultBlockPeriod,
		TxsPerBlock: DefaultTxsPerBlock,
		MempoolSize: DefaultMempoolSize,
		Verifier:    VerifierGroth16,
		Metrics:     true,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DBType != db.TypeMemory {
		return fmt.Errorf("data directory is required")
	}
	if c.DBType != db.TypePebble && c.DBType != db.TypeMemory {
		return fmt.Errorf("invalid db type %q", c.DBType)
	}
	if !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("invalid admin address %q", c.Admin)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.BlockPeriod <= 0 {
		return fmt.Errorf("block period must be positive")
	}
	if c.TxsPerBlock <= 0 || c.MempoolSize <= 0 {
		return fmt.Errorf("txs per block and mempool size must be positive")
	}
	switch c.Verifier {
	case VerifierGroth16, VerifierRapidsnark:
		if c.VerificationKey == "" {
			return fmt.Errorf("verification key path is required")
		}
	case VerifierCanned:
	default:
		return fmt.Errorf("invalid verifier %q", c.Verifier)
	}
	return nil
}

// AdminAddress returns the admin as an address. Validate must pass first.
func (c *Config) AdminAddress() common.Address {
	return common.HexToAddress(c.Admin)
}
