package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/rpc"
)

// balanceTTL is how long a fetched balance is reused before hitting the chain
// again. Routing a burst of opportunities must not turn into a balance query
// per plan.
const balanceTTL = 10 * time.Second

// ChainWallet implements domain.WalletState over the resilient RPC client.
// The native balance is priced in USD at a configured rate; balances are
// cached briefly.
type ChainWallet struct {
	chain       domain.ChainID
	address     common.Address
	caller      rpc.Caller
	ethPriceUSD decimal.Decimal

	mu        sync.Mutex
	balance   decimal.Decimal
	fetchedAt time.Time
}

// NewChainWallet derives the wallet address from the hex private key loaded
// by the crypto package and returns the wallet view. The key itself is not
// retained.
func NewChainWallet(chain domain.ChainID, privateKeyHex string, caller rpc.Caller, ethPriceUSD decimal.Decimal) (*ChainWallet, error) {
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return &ChainWallet{
		chain:       chain,
		address:     ethcrypto.PubkeyToAddress(key.PublicKey),
		caller:      caller,
		ethPriceUSD: ethPriceUSD,
	}, nil
}

// Address implements domain.WalletState.
func (w *ChainWallet) Address() string {
	return w.address.Hex()
}

// BalanceUSD implements domain.WalletState.
func (w *ChainWallet) BalanceUSD(ctx context.Context) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.fetchedAt) < balanceTTL {
		return w.balance, nil
	}

	var wei hexutil.Big
	if err := w.caller.Call(ctx, w.chain, &wei, "eth_getBalance", w.address, "latest"); err != nil {
		return decimal.Zero, fmt.Errorf("wallet: balance query: %w", err)
	}

	w.balance = decimal.NewFromBigInt(wei.ToInt(), -18).Mul(w.ethPriceUSD)
	w.fetchedAt = time.Now()
	return w.balance, nil
}

// Compile-time interface check.
var _ domain.WalletState = (*ChainWallet)(nil)

// StaticWallet is a fixed-balance wallet view used when no funding key is
// configured, so scan mode can still size and simulate plans.
type StaticWallet struct {
	balance decimal.Decimal
	address string
}

// NewStaticWallet creates a wallet view with a fixed USD balance.
func NewStaticWallet(balanceUSD decimal.Decimal, address string) *StaticWallet {
	if address == "" {
		address = "0x0000000000000000000000000000000000000000"
	}
	return &StaticWallet{balance: balanceUSD, address: address}
}

// Address implements domain.WalletState.
func (w *StaticWallet) Address() string { return w.address }

// BalanceUSD implements domain.WalletState.
func (w *StaticWallet) BalanceUSD(ctx context.Context) (decimal.Decimal, error) {
	return w.balance, nil
}

var _ domain.WalletState = (*StaticWallet)(nil)
