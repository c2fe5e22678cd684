package resolver

import (
	"context"
	"math/big"

	"github.com/klingon-exchange/fusion-resolver/pkg/helpers"
)

// NetworkReport is the startup view of the resolver's funds on one network.
type NetworkReport struct {
	Network       string        `json:"network"`
	Escrow        bool          `json:"escrow"`
	Resolver      string        `json:"resolver"`
	NativeBalance string        `json:"nativeBalance,omitempty"`
	Tokens        []TokenReport `json:"tokens,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
}

// TokenReport is the resolver's balance of one token, and its allowance to
// the escrow factory on escrow networks.
type TokenReport struct {
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance,omitempty"`
	ApproveTx string `json:"approveTx,omitempty"`
}

// Preflight logs the resolver's balances on every network and, on escrow
// networks, tops up the escrow factory's allowance for each held token when
// it is below the configured minimum. Failures are recorded in the report
// and do not stop the remaining checks.
func (r *Resolver) Preflight(ctx context.Context) []NetworkReport {
	reports := make([]NetworkReport, 0, len(r.adapters.Networks()))

	for _, name := range r.adapters.Networks() {
		a, _ := r.adapters.Get(name)
		resolver := a.ResolverAddress()
		rep := NetworkReport{Network: name, Escrow: a.SupportsEscrow(), Resolver: resolver}
		log := r.log.With("network", name, "resolver", resolver)

		var nativeDecimals uint8 = 18
		symbol := ""
		if params, err := r.cfg.Assets.Network(name); err == nil {
			nativeDecimals = params.NativeDecimals
			symbol = params.NativeSymbol
		}
		if bal, err := a.GetBalance(ctx, resolver); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			log.Warn("Failed to read native balance", "error", err)
		} else {
			rep.NativeBalance = helpers.FormatUnits(bal, nativeDecimals)
			log.Info("Resolver balance", "balance", rep.NativeBalance, "symbol", symbol)
		}

		factory := r.cfg.Factories[name]
		approve := r.cfg.Preflight.Enabled && a.SupportsEscrow() && factory != ""

		for _, asset := range r.cfg.Assets.Assets(name) {
			bal, err := a.GetTokenBalance(ctx, asset.Address, resolver)
			if err != nil {
				rep.Errors = append(rep.Errors, asset.Symbol+": "+err.Error())
				log.Warn("Failed to read token balance", "token", asset.Symbol, "error", err)
				continue
			}
			tok := TokenReport{Symbol: asset.Symbol, Balance: helpers.FormatUnits(bal, asset.Decimals)}
			log.Info("Resolver token balance", "token", asset.Symbol, "balance", tok.Balance)

			if approve && bal.Sign() > 0 {
				allowance, tx, err := r.ensureAllowance(ctx, name, asset.Address, asset.Decimals, factory)
				if err != nil {
					rep.Errors = append(rep.Errors, asset.Symbol+": "+err.Error())
					log.Warn("Factory approval check failed", "token", asset.Symbol, "factory", factory, "error", err)
				} else {
					tok.Allowance = helpers.FormatUnits(allowance, asset.Decimals)
					tok.ApproveTx = tx
				}
			}
			rep.Tokens = append(rep.Tokens, tok)
		}
		reports = append(reports, rep)
	}
	return reports
}

// ensureAllowance approves the factory for the configured amount when the
// current allowance is below the minimum. It returns the resulting allowance
// and the approve transaction, if one was sent.
func (r *Resolver) ensureAllowance(ctx context.Context, network, token string, decimals uint8, factory string) (*big.Int, string, error) {
	a, _ := r.adapters.Get(network)

	allowance, err := a.GetAllowance(ctx, token, a.ResolverAddress(), factory)
	if err != nil {
		return nil, "", err
	}
	floor := helpers.WholeUnits(r.cfg.Preflight.MinAllowance, decimals)
	if allowance.Cmp(floor) >= 0 {
		return allowance, "", nil
	}

	amount := helpers.WholeUnits(r.cfg.Preflight.ApproveAmount, decimals)
	tx, err := a.Approve(ctx, token, factory, amount)
	if err != nil {
		return nil, "", err
	}
	r.log.Info("Approved escrow factory",
		"network", network,
		"token", token,
		"factory", factory,
		"amount", helpers.FormatUnits(amount, decimals),
		"tx", tx,
	)
	return amount, tx.String(), nil
}
