package resolver

import (
	"math/big"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
)

// OrderStatusView is the client view of one order.
type OrderStatusView struct {
	OrderHash         string       `json:"orderHash"`
	Status            swap.Status  `json:"status"`
	StatusDescription string       `json:"statusDescription"`
	Mode              swap.Mode    `json:"mode"`
	HashLock          string       `json:"hashLock"`
	Secret            string       `json:"secret,omitempty"`
	SecretCleared     bool         `json:"secretCleared"`
	FromNetwork       string       `json:"fromNetwork"`
	ToNetwork         string       `json:"toNetwork"`
	FromToken         string       `json:"fromToken"`
	ToToken           string       `json:"toToken"`
	Amount            string       `json:"amount"`
	Maker             string       `json:"maker"`
	Receiver          string       `json:"receiver"`
	MakingAmount      string       `json:"makingAmount"`
	TakingAmount      string       `json:"takingAmount"`
	SrcTimeLocks      string       `json:"srcTimeLocks"`
	DstTimeLocks      string       `json:"dstTimeLocks"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
	PullTxHash        string       `json:"pullTxHash,omitempty"`
	SrcTxHash         string       `json:"srcTxHash,omitempty"`
	DstTxHash         string       `json:"dstTxHash,omitempty"`
	SrcEscrow         string       `json:"srcEscrow,omitempty"`
	DstEscrow         string       `json:"dstEscrow,omitempty"`
	PayoutTxHash      string       `json:"payoutTxHash,omitempty"`
	ClaimTxHash       string       `json:"claimTxHash,omitempty"`
	CancelTxHashes    []string     `json:"cancelTxHashes,omitempty"`
	PartialSettlement bool         `json:"partialSettlement"`
	ErrorKind         swaperr.Kind `json:"errorKind,omitempty"`
	Error             string       `json:"error,omitempty"`
}

// newStatusView builds the view of rec. The secret is included only when
// revealSecret is set and the record still holds it.
func newStatusView(rec *swap.OrderRecord, revealSecret bool) *OrderStatusView {
	v := &OrderStatusView{
		OrderHash:         rec.OrderHash.Hex(),
		Status:            rec.Status,
		StatusDescription: rec.Status.Description(),
		Mode:              rec.Mode,
		HashLock:          rec.HashLock.Hex(),
		SecretCleared:     rec.SecretCleared,
		FromNetwork:       rec.FromNetwork,
		ToNetwork:         rec.ToNetwork,
		FromToken:         rec.FromToken,
		ToToken:           rec.ToToken,
		Amount:            rec.Amount,
		Maker:             rec.Order.Maker,
		Receiver:          rec.Order.Receiver,
		MakingAmount:      bigString(rec.Order.MakingAmount),
		TakingAmount:      bigString(rec.Order.TakingAmount),
		SrcTimeLocks:      rec.SrcTimeLocks.String(),
		DstTimeLocks:      rec.DstTimeLocks.String(),
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		PullTxHash:        rec.PullTxHash,
		SrcTxHash:         rec.SrcTxHash,
		DstTxHash:         rec.DstTxHash,
		SrcEscrow:         rec.SrcEscrow,
		DstEscrow:         rec.DstEscrow,
		PayoutTxHash:      rec.PayoutTxHash,
		ClaimTxHash:       rec.ClaimTxHash,
		CancelTxHashes:    rec.CancelTxHashes,
		PartialSettlement: rec.PartialSettlement,
		ErrorKind:         rec.ErrorKind,
		Error:             rec.Error,
	}
	if revealSecret && !rec.SecretCleared && !rec.Secret.IsZero() {
		v.Secret = rec.Secret.Hex()
	}
	if !rec.CompletedAt.IsZero() {
		t := rec.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

// OrderSummary is one entry of the order list.
type OrderSummary struct {
	Status            swap.Status `json:"status"`
	Mode              swap.Mode   `json:"mode"`
	FromNetwork       string      `json:"fromNetwork"`
	ToNetwork         string      `json:"toNetwork"`
	FromToken         string      `json:"fromToken"`
	ToToken           string      `json:"toToken"`
	Amount            string      `json:"amount"`
	CreatedAt         time.Time   `json:"createdAt"`
	CompletedAt       *time.Time  `json:"completedAt,omitempty"`
	PartialSettlement bool        `json:"partialSettlement,omitempty"`
}

func newSummary(rec *swap.OrderRecord) OrderSummary {
	s := OrderSummary{
		Status:            rec.Status,
		Mode:              rec.Mode,
		FromNetwork:       rec.FromNetwork,
		ToNetwork:         rec.ToNetwork,
		FromToken:         rec.FromToken,
		ToToken:           rec.ToToken,
		Amount:            rec.Amount,
		CreatedAt:         rec.CreatedAt,
		PartialSettlement: rec.PartialSettlement,
	}
	if !rec.CompletedAt.IsZero() {
		t := rec.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
