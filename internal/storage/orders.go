// Package storage - Order persistence.
// Orders are written through from the registry so non-terminal orders can be
// settled after a restart, and terminal orders stay archived after they are
// pruned from memory.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

// Order persistence errors
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrCorruptRecord = errors.New("corrupt order record")
)

const orderColumns = `
	order_hash, hash_scheme,
	maker, maker_asset, taker_asset, making_amount, taking_amount,
	receiver, salt, maker_traits,
	hash_lock, secret, secret_cleared,
	src_timelocks, dst_timelocks,
	from_network, to_network, from_token, to_token, amount,
	mode, status,
	pull_tx_hash, src_tx_hash, dst_tx_hash, src_escrow, dst_escrow,
	payout_tx_hash, claim_tx_hash, cancel_tx_hashes,
	partial_settlement, error_kind, error,
	created_at, updated_at, completed_at
`

// OrderFilter specifies criteria for listing orders.
type OrderFilter struct {
	Status      *swap.Status
	FromNetwork string
	ToNetwork   string
	Since       time.Time
	Limit       int
	Offset      int
}

// SaveOrder saves or updates an order record.
// Uses UPSERT pattern - creates if not exists, updates if exists.
func (s *Storage) SaveOrder(rec *swap.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret := ""
	if !rec.SecretCleared && !rec.Secret.IsZero() {
		secret = rec.Secret.Hex()
	}
	cancels, err := json.Marshal(rec.CancelTxHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal cancel tx hashes: %w", err)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_hash) DO UPDATE SET
			secret = excluded.secret,
			secret_cleared = excluded.secret_cleared,
			mode = excluded.mode,
			status = excluded.status,
			pull_tx_hash = excluded.pull_tx_hash,
			src_tx_hash = excluded.src_tx_hash,
			dst_tx_hash = excluded.dst_tx_hash,
			src_escrow = excluded.src_escrow,
			dst_escrow = excluded.dst_escrow,
			payout_tx_hash = excluded.payout_tx_hash,
			claim_tx_hash = excluded.claim_tx_hash,
			cancel_tx_hashes = excluded.cancel_tx_hashes,
			partial_settlement = excluded.partial_settlement,
			error_kind = excluded.error_kind,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`

	_, err = s.db.Exec(query,
		rec.OrderHash.Hex(),
		string(rec.HashScheme),
		rec.Order.Maker,
		rec.Order.MakerAsset,
		rec.Order.TakerAsset,
		bigString(rec.Order.MakingAmount),
		bigString(rec.Order.TakingAmount),
		rec.Order.Receiver,
		hexutil.Encode(rec.Order.Salt[:]),
		bigString(rec.Order.MakerTraits),
		rec.HashLock.Hex(),
		secret,
		boolToInt(rec.SecretCleared),
		rec.SrcTimeLocks.String(),
		rec.DstTimeLocks.String(),
		rec.FromNetwork,
		rec.ToNetwork,
		rec.FromToken,
		rec.ToToken,
		rec.Amount,
		string(rec.Mode),
		string(rec.Status),
		rec.PullTxHash,
		rec.SrcTxHash,
		rec.DstTxHash,
		rec.SrcEscrow,
		rec.DstEscrow,
		rec.PayoutTxHash,
		rec.ClaimTxHash,
		string(cancels),
		boolToInt(rec.PartialSettlement),
		string(rec.ErrorKind),
		rec.Error,
		rec.CreatedAt.Unix(),
		updatedAt.Unix(),
		timeToUnixOrZero(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by hash.
func (s *Storage) GetOrder(hash order.Hash) (*swap.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_hash = ?`, hash.Hex())
	rec, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListOrders returns orders matching the filter, oldest first.
func (s *Storage) ListOrders(filter OrderFilter) ([]*swap.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.FromNetwork != "" {
		query += " AND from_network = ?"
		args = append(args, filter.FromNetwork)
	}
	if filter.ToNetwork != "" {
		query += " AND to_network = ?"
		args = append(args, filter.ToNetwork)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.Unix())
	}

	query += " ORDER BY created_at ASC, order_hash ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*swap.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListActiveOrders returns all non-terminal orders.
func (s *Storage) ListActiveOrders() ([]*swap.OrderRecord, error) {
	var out []*swap.OrderRecord
	for _, status := range []swap.Status{swap.StatusPending, swap.StatusEscrowsCreated} {
		st := status
		recs, err := s.ListOrders(OrderFilter{Status: &st})
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// CountOrders returns the number of orders, optionally filtered by status.
func (s *Storage) CountOrders(status *swap.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if status != nil {
		err = s.db.QueryRow("SELECT COUNT(*) FROM orders WHERE status = ?", string(*status)).Scan(&count)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// =============================================================================
// Scanning
// =============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*swap.OrderRecord, error) {
	var (
		rec                                      swap.OrderRecord
		hash, scheme, making, taking, salt       string
		traits, hashLock                         string
		secret, srcTL, dstTL                     sql.NullString
		mode, status                             string
		pull, srcTx, dstTx, srcEsc, dstEsc       sql.NullString
		payout, claim, cancels, errKind, errText sql.NullString
		secretCleared, partial                   int
		createdAt                                int64
		updatedAt, completedAt                   sql.NullInt64
	)

	err := row.Scan(
		&hash, &scheme,
		&rec.Order.Maker, &rec.Order.MakerAsset, &rec.Order.TakerAsset, &making, &taking,
		&rec.Order.Receiver, &salt, &traits,
		&hashLock, &secret, &secretCleared,
		&srcTL, &dstTL,
		&rec.FromNetwork, &rec.ToNetwork, &rec.FromToken, &rec.ToToken, &rec.Amount,
		&mode, &status,
		&pull, &srcTx, &dstTx, &srcEsc, &dstEsc,
		&payout, &claim, &cancels,
		&partial, &errKind, &errText,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if rec.OrderHash, err = order.ParseHash(hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.HashLock, err = order.ParseHashLock(hashLock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if secret.String != "" {
		if rec.Secret, err = order.ParseSecret(secret.String); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
	}
	saltBytes, err := hexutil.Decode(salt)
	if err != nil || len(saltBytes) != 32 {
		return nil, fmt.Errorf("%w: salt %q", ErrCorruptRecord, salt)
	}
	copy(rec.Order.Salt[:], saltBytes)

	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&rec.Order.MakingAmount, making},
		{&rec.Order.TakingAmount, taking},
		{&rec.Order.MakerTraits, traits},
	} {
		v, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return nil, fmt.Errorf("%w: amount %q", ErrCorruptRecord, f.src)
		}
		*f.dst = v
	}

	if srcTL.String != "" {
		if rec.SrcTimeLocks, err = timelock.FromDecimal(srcTL.String); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
	}
	if dstTL.String != "" {
		if rec.DstTimeLocks, err = timelock.FromDecimal(dstTL.String); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
	}
	if cancels.String != "" && cancels.String != "null" {
		if err := json.Unmarshal([]byte(cancels.String), &rec.CancelTxHashes); err != nil {
			return nil, fmt.Errorf("%w: cancel tx hashes: %v", ErrCorruptRecord, err)
		}
	}

	rec.HashScheme = order.Scheme(scheme)
	rec.SecretCleared = secretCleared == 1
	rec.Mode = swap.Mode(mode)
	rec.Status = swap.Status(status)
	rec.PullTxHash = pull.String
	rec.SrcTxHash = srcTx.String
	rec.DstTxHash = dstTx.String
	rec.SrcEscrow = srcEsc.String
	rec.DstEscrow = dstEsc.String
	rec.PayoutTxHash = payout.String
	rec.ClaimTxHash = claim.String
	rec.PartialSettlement = partial == 1
	rec.ErrorKind = swaperr.Kind(errKind.String)
	rec.Error = errText.String
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = unixOrZero(updatedAt.Int64)
	rec.CompletedAt = unixOrZero(completedAt.Int64)

	return &rec, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
