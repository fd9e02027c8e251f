package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.vocdoni.io/zkballot/ledger"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/transaction"
)

// maxTxSize bounds the body of a submitted transaction.
const maxTxSize = 1 << 20

// submitTx decodes a SignedTx, sends it to the ledger and waits for it to be
// delivered. The response is the ledger.TxResult.
func (a *API) submitTx(w http.ResponseWriter, r *http.Request) {
	stx := &transaction.SignedTx{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxSize)).Decode(stx); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(stx.Tx) == 0 {
		ErrMalformedBody.With("missing tx").Write(w)
		return
	}
	data, err := stx.Marshal()
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	res, err := a.ledger.SendTx(r.Context(), data)
	if err != nil {
		apiErr := txError(err)
		if apiErr.Code >= 50000 {
			log.Warnw("transaction failed", "error", err.Error())
		}
		apiErr.Write(w)
		return
	}
	httpWriteJSON(w, res)
}

func (a *API) transaction(w http.ResponseWriter, r *http.Request) {
	hash, ok := urlTxHash(w, r)
	if !ok {
		return
	}
	data, ref, err := a.ledger.TxByHash(hash)
	if errors.Is(err, ledger.ErrTxNotFound) {
		ErrTransactionNotFound.With(hash.String()).Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	dtx, err := transaction.Decode(data, a.ledger.ElectionID())
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	tx := &Transaction{
		Hash:   hash,
		Height: ref.Height,
		Index:  ref.Index,
		Tx:     dtx.Tx,
		Raw:    data,
	}
	if dtx.Signer != nil {
		tx.Signer = dtx.Signer.Hex()
	}
	httpWriteJSON(w, tx)
}

func (a *API) block(w http.ResponseWriter, r *http.Request) {
	height, ok := urlHeight(w, r)
	if !ok {
		return
	}
	header, err := a.ledger.Block(height)
	if errors.Is(err, ledger.ErrBlockNotFound) {
		ErrBlockNotFound.With(strconv.FormatUint(height, 10)).Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, header)
}
