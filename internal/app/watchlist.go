package app

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/strategy"
)

// watchlist bundles the event hunter's per-chain contract metadata: the DEX
// pools whose swap logs are classified, the ERC20s whose transfers are
// sized, and the routers that flag pending transactions.
type watchlist struct {
	pools   map[common.Address]strategy.PoolInfo
	tokens  map[common.Address]strategy.TokenInfo
	routers map[common.Address]string
}

// watchlistFor returns the built-in watchlist for a chain. Chains without one
// get empty maps; the hunter then runs but classifies nothing until a
// watchlist is added here.
func watchlistFor(chain domain.ChainID) watchlist {
	if chain == domain.ChainArbitrum {
		return arbitrumWatchlist()
	}
	return watchlist{
		pools:   map[common.Address]strategy.PoolInfo{},
		tokens:  map[common.Address]strategy.TokenInfo{},
		routers: map[common.Address]string{},
	}
}

// Arbitrum One mainnet addresses. Prices are rough static references used
// only to classify event notionals; execution math never touches them.
func arbitrumWatchlist() watchlist {
	var (
		usd      = decimal.NewFromInt(1)
		ethPrice = decimal.NewFromInt(3000)
		btcPrice = decimal.NewFromInt(60_000)
		weth     = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
		usdc     = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
		usdce    = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
		usdt     = common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9")
		wbtc     = common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f")
		dai      = common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1")
	)

	return watchlist{
		pools: map[common.Address]strategy.PoolInfo{
			// Uniswap V3 WETH/USDC 0.05%.
			common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0"): {
				Venue:     "uniswap_v3",
				Token0:    "WETH",
				Token1:    "USDC",
				Price0USD: ethPrice,
				Price1USD: usd,
				Decimals0: 18,
				Decimals1: 6,
			},
			// Uniswap V3 WETH/USDT 0.05%.
			common.HexToAddress("0x641C00A822e8b671738d32a431a4Fb6074E5c79d"): {
				Venue:     "uniswap_v3",
				Token0:    "WETH",
				Token1:    "USDT",
				Price0USD: ethPrice,
				Price1USD: usd,
				Decimals0: 18,
				Decimals1: 6,
			},
			// Uniswap V3 WBTC/WETH 0.05%.
			common.HexToAddress("0x2f5e87C9312fa29aed5c179E456625D79015299c"): {
				Venue:     "uniswap_v3",
				Token0:    "WBTC",
				Token1:    "WETH",
				Price0USD: btcPrice,
				Price1USD: ethPrice,
				Decimals0: 8,
				Decimals1: 18,
			},
			// SushiSwap WETH/USDC.e pair.
			common.HexToAddress("0x905dfCD5649217c42684f23958568e533C711Aa3"): {
				Venue:     "sushiswap",
				Token0:    "WETH",
				Token1:    "USDC.e",
				Price0USD: ethPrice,
				Price1USD: usd,
				Decimals0: 18,
				Decimals1: 6,
			},
		},
		tokens: map[common.Address]strategy.TokenInfo{
			weth:  {Symbol: "WETH", PriceUSD: ethPrice, Decimals: 18},
			usdc:  {Symbol: "USDC", PriceUSD: usd, Decimals: 6},
			usdce: {Symbol: "USDC.e", PriceUSD: usd, Decimals: 6},
			usdt:  {Symbol: "USDT", PriceUSD: usd, Decimals: 6},
			wbtc:  {Symbol: "WBTC", PriceUSD: btcPrice, Decimals: 8},
			dai:   {Symbol: "DAI", PriceUSD: usd, Decimals: 18},
		},
		routers: map[common.Address]string{
			common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"): "uniswap_v3", // SwapRouter
			common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): "uniswap_v3", // SwapRouter02
			common.HexToAddress("0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"): "sushiswap",
			common.HexToAddress("0xc873fEcbd354f5A56E00E710B90EF4201db2448d"): "camelot",
		},
	}
}
