package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TronBackend talks to a java-tron full node over its HTTP API.
// Addresses are passed in 41-prefixed hex form (visible=false).
type TronBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	mu         sync.RWMutex
	connected  bool
}

// NewTronBackend creates a Tron HTTP backend.
func NewTronBackend(cfg *Config) *TronBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &TronBackend{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Type returns TypeTronHTTP.
func (t *TronBackend) Type() Type {
	return TypeTronHTTP
}

// Connect tests the connection by fetching the latest block.
func (t *TronBackend) Connect(ctx context.Context) error {
	var block struct {
		BlockID string `json:"blockID"`
	}
	if err := t.post(ctx, "/wallet/getnowblock", struct{}{}, &block); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if block.BlockID == "" {
		return fmt.Errorf("%w: empty block", ErrNotConnected)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Close marks the backend disconnected.
func (t *TronBackend) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// IsConnected returns true if Connect succeeded.
func (t *TronBackend) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// =============================================================================
// Wire types
// =============================================================================

// Transaction is an unsigned or signed Tron transaction as returned by
// triggersmartcontract and accepted by broadcasttransaction.
type Transaction struct {
	TxID       string          `json:"txID"`
	RawData    json.RawMessage `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Signature  []string        `json:"signature,omitempty"`
	Visible    bool            `json:"visible"`
}

// TxIDBytes returns the decoded transaction ID.
func (tx *Transaction) TxIDBytes() ([]byte, error) {
	return hex.DecodeString(tx.TxID)
}

// VerifyTxID checks that the transaction ID is sha256(raw_data). A node that
// returned a txID not matching the raw data would get us to sign something
// other than what we broadcast.
func (tx *Transaction) VerifyTxID() error {
	raw, err := hex.DecodeString(tx.RawDataHex)
	if err != nil {
		return fmt.Errorf("%w: bad raw_data_hex: %v", ErrInvalidTxID, err)
	}
	if hex.EncodeToString(chainhash.HashB(raw)) != strings.ToLower(tx.TxID) {
		return ErrInvalidTxID
	}
	return nil
}

// callResult is the "result" object of trigger endpoints.
type callResult struct {
	Result  bool   `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"` // hex-encoded text
}

func (r callResult) err() error {
	if r.Result {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrContractCall, r.Code, decodeMessage(r.Message))
}

// ConstantResult is the output of a read-only contract call.
type ConstantResult struct {
	Output     []byte
	EnergyUsed int64
}

// TransactionInfo is the execution receipt of a mined transaction.
type TransactionInfo struct {
	ID          string   `json:"id"`
	BlockNumber int64    `json:"blockNumber"`
	BlockTime   int64    `json:"blockTimeStamp"`
	Fee         int64    `json:"fee"`
	Result      string   `json:"result"` // "FAILED" when the tx failed, absent on success
	ResMessage  string   `json:"resMessage"`
	Contract    []string `json:"contractResult"`
	Receipt     struct {
		Result     string `json:"result"` // SUCCESS, REVERT, OUT_OF_ENERGY, ...
		EnergyUsed int64  `json:"energy_usage_total"`
	} `json:"receipt"`
}

// Succeeded reports whether the contract execution succeeded.
func (i *TransactionInfo) Succeeded() bool {
	if i.Result == "FAILED" {
		return false
	}
	return i.Receipt.Result == "" || i.Receipt.Result == "SUCCESS"
}

// FailureReason returns a readable failure reason.
func (i *TransactionInfo) FailureReason() string {
	parts := []string{}
	if i.Receipt.Result != "" {
		parts = append(parts, i.Receipt.Result)
	}
	if msg := decodeMessage(i.ResMessage); msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}

// =============================================================================
// API
// =============================================================================

// GetBalance returns the TRX balance of an account in sun. Unactivated
// accounts return zero.
func (t *TronBackend) GetBalance(ctx context.Context, address string) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	req := map[string]interface{}{"address": address, "visible": false}
	if err := t.post(ctx, "/wallet/getaccount", req, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

// TriggerConstant runs a read-only contract call. parameter is the hex ABI
// encoding of the arguments without the selector.
func (t *TronBackend) TriggerConstant(ctx context.Context, owner, contract, selector, parameter string) (*ConstantResult, error) {
	var result struct {
		Result         callResult `json:"result"`
		ConstantResult []string   `json:"constant_result"`
		EnergyUsed     int64      `json:"energy_used"`
	}
	req := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": selector,
		"parameter":         parameter,
		"visible":           false,
	}
	if err := t.post(ctx, "/wallet/triggerconstantcontract", req, &result); err != nil {
		return nil, err
	}
	if err := result.Result.err(); err != nil {
		return nil, err
	}
	if len(result.ConstantResult) == 0 {
		return nil, fmt.Errorf("%w: empty constant_result", ErrContractCall)
	}

	out, err := hex.DecodeString(result.ConstantResult[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad constant_result: %v", ErrContractCall, err)
	}
	return &ConstantResult{Output: out, EnergyUsed: result.EnergyUsed}, nil
}

// TriggerSmartContract builds an unsigned contract call transaction.
func (t *TronBackend) TriggerSmartContract(ctx context.Context, owner, contract, selector, parameter string, feeLimit, callValue int64) (*Transaction, error) {
	var result struct {
		Result      callResult   `json:"result"`
		Transaction *Transaction `json:"transaction"`
	}
	req := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": selector,
		"parameter":         parameter,
		"fee_limit":         feeLimit,
		"call_value":        callValue,
		"visible":           false,
	}
	if err := t.post(ctx, "/wallet/triggersmartcontract", req, &result); err != nil {
		return nil, err
	}
	if err := result.Result.err(); err != nil {
		return nil, err
	}
	if result.Transaction == nil || result.Transaction.TxID == "" {
		return nil, fmt.Errorf("%w: no transaction returned", ErrContractCall)
	}
	if err := result.Transaction.VerifyTxID(); err != nil {
		return nil, err
	}
	return result.Transaction, nil
}

// BroadcastTransaction submits a signed transaction and returns its ID.
func (t *TronBackend) BroadcastTransaction(ctx context.Context, tx *Transaction) (string, error) {
	if len(tx.Signature) == 0 {
		return "", fmt.Errorf("%w: unsigned transaction", ErrBroadcastFailed)
	}

	var result struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		TxID    string `json:"txid"`
		Message string `json:"message"`
	}
	if err := t.post(ctx, "/wallet/broadcasttransaction", tx, &result); err != nil {
		return "", err
	}
	if !result.Result {
		return "", fmt.Errorf("%w: %s %s", ErrBroadcastFailed, result.Code, decodeMessage(result.Message))
	}
	if result.TxID == "" {
		return tx.TxID, nil
	}
	return result.TxID, nil
}

// GetTransactionInfo returns the receipt of a transaction, or ErrTxNotFound
// while it is not yet in a block.
func (t *TronBackend) GetTransactionInfo(ctx context.Context, txID string) (*TransactionInfo, error) {
	var info TransactionInfo
	if err := t.post(ctx, "/wallet/gettransactioninfobyid", map[string]string{"value": txID}, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, ErrTxNotFound
	}
	return &info, nil
}

// WaitForTransaction polls until the transaction is in a block or ctx ends.
func (t *TronBackend) WaitForTransaction(ctx context.Context, txID string, interval time.Duration) (*TransactionInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := t.GetTransactionInfo(ctx, txID)
		if err == nil {
			return info, nil
		}
		if err != ErrTxNotFound {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", txID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// =============================================================================
// HTTP helpers
// =============================================================================

func (t *TronBackend) post(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeMessage decodes the hex-encoded messages java-tron returns, falling
// back to the raw text.
func decodeMessage(s string) string {
	if s == "" {
		return ""
	}
	if b, err := hex.DecodeString(s); err == nil {
		return string(b)
	}
	return s
}
