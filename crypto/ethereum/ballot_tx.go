package ethereum

import (
	"bytes"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const ballotTxTemplate = "Ballot signed transaction:\nelection: %s\nhash: %x"

// BuildBallotTxMessage builds the message signed for a ballot transaction.
// It binds the transaction to an election, so signatures cannot be replayed
// on a different ledger.
func BuildBallotTxMessage(txData []byte, electionID string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, ballotTxTemplate, electionID, HashRaw(txData))
	return buf.Bytes()
}

// SignBallotTx signs a ballot transaction. TxData is the full transaction
// payload (no HexString nor a Hash).
func (k *SignKeys) SignBallotTx(txData []byte, electionID string) ([]byte, error) {
	return k.Sign(BuildBallotTxMessage(txData, electionID))
}

// AddrFromBallotTxSignature recovers the address that signed the ballot transaction.
func AddrFromBallotTxSignature(txData []byte, electionID string, signature []byte) (ethcommon.Address, error) {
	return AddrFromSignature(BuildBallotTxMessage(txData, electionID), signature)
}
