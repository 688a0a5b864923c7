package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/equinox-racing/racebot/internal/aptos/bcs"
	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/valyala/fastrand"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeSignedBCS = "application/x.aptos.signed_transaction+bcs"

	txTypePending = "pending_transaction"

	maxErrorBody = 64 << 10
)

var ErrTransactionNotFound = errors.New("transaction not found")

// APIError is a non 2xx answer from the node.
type APIError struct {
	StatusCode  int    `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode uint64 `json:"vm_error_code"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("aptos api %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("aptos api %d: %s", e.StatusCode, e.Message)
}

type ViewRequest struct {
	Function      FunctionID
	TypeArguments []string
	// Arguments use the JSON argument encoding: u64 as decimal strings,
	// see U64Arg.
	Arguments []interface{}
}

func (r ViewRequest) MarshalJSON() ([]byte, error) {
	typeArgs := r.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := r.Arguments
	if args == nil {
		args = []interface{}{}
	}

	return json.Marshal(struct {
		Function      string        `json:"function"`
		TypeArguments []string      `json:"type_arguments"`
		Arguments     []interface{} `json:"arguments"`
	}{
		Function:      r.Function.String(),
		TypeArguments: typeArgs,
		Arguments:     args,
	})
}

func U64Arg(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type LedgerInfo struct {
	ChainID         uint8  `json:"chain_id"`
	LedgerVersion   string `json:"ledger_version"`
	LedgerTimestamp string `json:"ledger_timestamp"`
}

type AccountInfo struct {
	SequenceNumber    string `json:"sequence_number"`
	AuthenticationKey string `json:"authentication_key"`
}

func (a AccountInfo) Sequence() (uint64, error) {
	n, err := strconv.ParseUint(a.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence number %q: %w", a.SequenceNumber, err)
	}
	return n, nil
}

// Transaction is the part of a node transaction response the bot reads.
type Transaction struct {
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Version  string `json:"version"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

func (t Transaction) Pending() bool {
	return t.Type == txTypePending
}

type Client struct {
	nodeURL      string
	http         *http.Client
	pollInterval time.Duration
}

// NewClient talks to the node at nodeURL, which includes the API version
// path, e.g. https://api.testnet.aptoslabs.com/v1.
func NewClient(nodeURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		nodeURL:      strings.TrimRight(nodeURL, "/"),
		http:         httpClient,
		pollInterval: 500 * time.Millisecond,
	}
}

func (c *Client) NodeURL() string {
	return c.nodeURL
}

// SetPollInterval changes how often WaitForTransaction asks the node.
func (c *Client) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// View runs a read only Move function and returns its return values
// undecoded.
func (c *Client) View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal view request: %w", err)
	}

	var out []json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/view", contentTypeJSON, body, &out); err != nil {
		return nil, fmt.Errorf("view %s: %w", req.Function, err)
	}

	return out, nil
}

func (c *Client) LedgerInfo(ctx context.Context) (LedgerInfo, error) {
	var info LedgerInfo
	if err := c.do(ctx, http.MethodGet, "/", "", nil, &info); err != nil {
		return info, fmt.Errorf("ledger info: %w", err)
	}
	return info, nil
}

func (c *Client) Account(ctx context.Context, addr AccountAddress) (AccountInfo, error) {
	var info AccountInfo
	if err := c.do(ctx, http.MethodGet, "/accounts/"+addr.String(), "", nil, &info); err != nil {
		return info, fmt.Errorf("account %s: %w", addr, err)
	}
	return info, nil
}

// SubmitTransaction posts the BCS encoded transaction and returns the pending
// transaction the node accepted.
func (c *Client) SubmitTransaction(ctx context.Context, txn SignedTransaction) (Transaction, error) {
	var pending Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", contentTypeSignedBCS, bcs.Serialize(txn), &pending); err != nil {
		return pending, fmt.Errorf("submit transaction: %w", err)
	}
	return pending, nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash string) (Transaction, error) {
	var txn Transaction
	err := c.do(ctx, http.MethodGet, "/transactions/by_hash/"+hash, "", nil, &txn)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return txn, ErrTransactionNotFound
	}
	if err != nil {
		return txn, fmt.Errorf("transaction %s: %w", hash, err)
	}
	return txn, nil
}

// WaitForTransaction polls until the transaction leaves the mempool or ctx
// is done. A committed but failed transaction is returned without error; the
// caller inspects Success.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (Transaction, error) {
	logger := logging.FromContext(ctx).Named("aptos.wait")

	for {
		txn, err := c.TransactionByHash(ctx, hash)
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			logger.Debugf("transaction %s not indexed yet", hash)
		case err != nil:
			return txn, err
		case !txn.Pending():
			return txn, nil
		}

		if err := c.sleep(ctx); err != nil {
			return txn, fmt.Errorf("wait for transaction %s: %w", hash, err)
		}
	}
}

func (c *Client) sleep(ctx context.Context) error {
	d := c.pollInterval
	if jitter := uint32(d / 4); jitter > 0 {
		d += time.Duration(fastrand.Uint32n(jitter))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.nodeURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = fmt.Sprintf("read body: %v", err)
		return apiErr
	}

	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	return apiErr
}
