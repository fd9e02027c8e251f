//nolint:lll
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.vocdoni.io/zkballot/ledger"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/voting"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 503 or 504.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXXX or 5XXXX.
var (
	ErrResourceNotFound    = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody       = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrVoterNotRegistered  = Error{Code: 40003, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("voter not registered")}
	ErrMalformedAddress    = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrInvalidSignature    = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedNullifier  = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed nullifier hash")}
	ErrNullifierNotFound   = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("nullifier not used")}
	ErrMalformedTxHash     = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed transaction hash")}
	ErrTransactionNotFound = Error{Code: 40009, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("transaction not found")}
	ErrMalformedHeight     = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed block height")}
	ErrBlockNotFound       = Error{Code: 40011, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("block not found")}
	ErrInvalidTx           = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid transaction")}
	ErrUnsignedTx          = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("transaction must be signed")}
	ErrPhase               = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("operation not allowed in the current phase")}
	ErrAlreadyRegistered   = Error{Code: 40015, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voter already registered")}
	ErrAlreadyVoted        = Error{Code: 40016, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote already cast")}
	ErrInvalidProof        = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid proof")}
	ErrMalformedSignals    = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed public signals")}
	ErrInvalidWindow       = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid voting period")}
	ErrUnauthorized        = Error{Code: 40020, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("caller is not the admin")}
	ErrUnknownCandidate    = Error{Code: 40021, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown candidate")}
	ErrMalformedCommitment = Error{Code: 40022, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed commitment")}
	ErrInvalidCandidate    = Error{Code: 40023, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid candidate")}
	ErrTxExists            = Error{Code: 40024, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("transaction already exists")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrMempoolFull                = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("mempool is full")}
	ErrLedgerStopped              = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger stopped")}
	ErrTxNotDelivered             = Error{Code: 50005, HTTPstatus: http.StatusGatewayTimeout, Err: fmt.Errorf("transaction not delivered in time")}
)

// txErrors maps the ledger, transaction and voting errors to their API error.
// The first match wins.
var txErrors = []struct {
	err    error
	apiErr Error
}{
	{voting.ErrPhase, ErrPhase},
	{voting.ErrAlreadyRegistered, ErrAlreadyRegistered},
	{voting.ErrAlreadyVoted, ErrAlreadyVoted},
	{voting.ErrInvalidProof, ErrInvalidProof},
	{voting.ErrMalformedSignals, ErrMalformedSignals},
	{voting.ErrInvalidWindow, ErrInvalidWindow},
	{voting.ErrUnauthorized, ErrUnauthorized},
	{voting.ErrUnknownCandidate, ErrUnknownCandidate},
	{voting.ErrMalformedCommitment, ErrMalformedCommitment},
	{voting.ErrInvalidCandidate, ErrInvalidCandidate},
	{transaction.ErrInvalidSignature, ErrInvalidSignature},
	{transaction.ErrUnsignedTx, ErrUnsignedTx},
	{transaction.ErrNilTx, ErrInvalidTx},
	{transaction.ErrInvalidTx, ErrInvalidTx},
	{transaction.ErrTxType, ErrInvalidTx},
	{ledger.ErrTxExists, ErrTxExists},
	{ledger.ErrMempoolFull, ErrMempoolFull},
	{ledger.ErrStopped, ErrLedgerStopped},
	{context.DeadlineExceeded, ErrTxNotDelivered},
	{context.Canceled, ErrTxNotDelivered},
}

// txError returns the API error for an error returned by the ledger.
func txError(err error) Error {
	for _, e := range txErrors {
		if errors.Is(err, e.err) {
			return e.apiErr.WithErr(err)
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}
