// Package client is an HTTP client for the ballot API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/api"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/ledger"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client. Submitting a
	// transaction waits for a block, so it must be longer than the block time.
	DefaultTimeout = 60 * time.Second
	// DefaultRetryDelay is the wait between two attempts
	DefaultRetryDelay = 500 * time.Millisecond
)

// HTTPclient is the ballot API HTTP client.
type HTTPclient struct {
	c          *http.Client
	host       *url.URL
	retries    int
	retryDelay time.Duration
	signer     *ethereum.SignKeys
	electionID string
}

// New connects to the API host and returns the handle. The election id is
// fetched from the server, since it is needed to sign transactions.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
	}
	c := &HTTPclient{
		c:          &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:       hostURL,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	info, err := c.Info()
	if err != nil {
		return nil, err
	}
	c.electionID = info.ElectionID
	return c, nil
}

// SetAccount sets the key used to sign transactions.
func (c *HTTPclient) SetAccount(key *ethereum.SignKeys) {
	c.signer = key
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// ElectionID returns the election the client is connected to.
func (c *HTTPclient) ElectionID() string {
	return c.electionID
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached. Returns the response,
// the status code and an error.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	log.Debugw("http client request", "type", method, "url", u.String(), "bodySize", len(body))

	var resp *http.Response
	var err error
	for i := 1; i <= c.retries; i++ {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		var req *http.Request
		req, err = http.NewRequest(method, u.String(), reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
		}
		resp, err = c.c.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
			time.Sleep(c.retryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// do performs a request and decodes a 200 response into out. Any other
// status is returned as an api.Error.
func (c *HTTPclient) do(method string, body, out any, urlPath ...string) error {
	data, status, err := c.Request(method, body, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := api.Error{}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Err == nil {
			return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
		}
		apiErr.HTTPstatus = status
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Info returns the election summary.
func (c *HTTPclient) Info() (*api.Info, error) {
	info := &api.Info{}
	return info, c.do(HTTPGET, nil, info, api.InfoEndpoint)
}

// Candidates returns the candidates with their tallies.
func (c *HTTPclient) Candidates() (*api.Candidates, error) {
	cands := &api.Candidates{}
	return cands, c.do(HTTPGET, nil, cands, api.CandidatesEndpoint)
}

// Phase returns the phase predicates at the server time.
func (c *HTTPclient) Phase() (*api.Phase, error) {
	p := &api.Phase{}
	return p, c.do(HTTPGET, nil, p, api.PhaseEndpoint)
}

// Commitment returns the commitment registered by voter.
func (c *HTTPclient) Commitment(voter common.Address) (*types.BigInt, error) {
	resp := &api.Commitment{}
	if err := c.do(HTTPGET, nil, resp, "voters", voter.Hex(), "commitment"); err != nil {
		return nil, err
	}
	return resp.Commitment, nil
}

// Nullifier returns where the nullifier hash was consumed.
func (c *HTTPclient) Nullifier(nullifierHash *types.BigInt) (*api.Nullifier, error) {
	resp := &api.Nullifier{}
	return resp, c.do(HTTPGET, nil, resp, "nullifiers", nullifierHash.String())
}

// TotalVotes returns the number of votes cast.
func (c *HTTPclient) TotalVotes() (uint64, error) {
	resp := &api.TotalVotes{}
	if err := c.do(HTTPGET, nil, resp, api.TotalVotesEndpoint); err != nil {
		return 0, err
	}
	return resp.TotalVotes, nil
}

// Transaction returns a delivered transaction.
func (c *HTTPclient) Transaction(hash types.HexBytes) (*api.Transaction, error) {
	resp := &api.Transaction{}
	return resp, c.do(HTTPGET, nil, resp, "transactions", hash.String())
}

// Block returns a block header.
func (c *HTTPclient) Block(height uint64) (*ledger.BlockHeader, error) {
	resp := &ledger.BlockHeader{}
	return resp, c.do(HTTPGET, nil, resp, "blocks", strconv.FormatUint(height, 10))
}

// SubmitTx signs tx with the account key, if any, and waits for its
// delivery.
func (c *HTTPclient) SubmitTx(tx *transaction.Tx) (*ledger.TxResult, error) {
	body, err := tx.Marshal()
	if err != nil {
		return nil, err
	}
	stx := &transaction.SignedTx{Tx: body}
	if c.signer != nil && tx.Type != transaction.TxCastVote {
		if stx.Signature, err = c.signer.SignBallotTx(body, c.electionID); err != nil {
			return nil, err
		}
	}
	res := &ledger.TxResult{}
	return res, c.do(HTTPPOST, stx, res, api.TransactionsEndpoint)
}
