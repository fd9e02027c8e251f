package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/types"
)

// httpWriteJSON writes data as a JSON body with status 200.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(jdata, '\n')); err != nil {
		log.Debugw("cannot write http response", "error", err.Error(), "bytes", len(jdata))
	}
}

// httpWriteOK writes an empty 200 response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Debugw("cannot write http response", "error", err.Error())
	}
}

// The url* helpers parse a path parameter. On failure they write the API
// error and return false.

func urlVoter(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(addr) {
		ErrMalformedAddress.With(addr).Write(w)
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

func urlNullifierHash(w http.ResponseWriter, r *http.Request) (*types.BigInt, bool) {
	nullifierHash, err := verifier.ParseSignal(chi.URLParam(r, NullifierURLParam))
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return nil, false
	}
	return nullifierHash, true
}

func urlTxHash(w http.ResponseWriter, r *http.Request) (types.HexBytes, bool) {
	hash, err := types.HexStringToHexBytes(chi.URLParam(r, TxHashURLParam))
	if err != nil || len(hash) != 32 {
		ErrMalformedTxHash.Write(w)
		return nil, false
	}
	return hash, true
}

func urlHeight(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	height, err := strconv.ParseUint(chi.URLParam(r, HeightURLParam), 10, 64)
	if err != nil {
		ErrMalformedHeight.WithErr(err).Write(w)
		return 0, false
	}
	return height, true
}
