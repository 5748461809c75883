// Package contracts holds the ABIs and deployable artifacts of the pool contracts.
package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names. The pool declares two withdraw overloads; the ABI parser
// renames the second one (owner withdrawal) to withdraw0.
const (
	MethodSymbol            = "symbol"
	MethodName              = "name"
	MethodDecimals          = "decimals"
	MethodAllowance         = "allowance"
	MethodBalanceOf         = "balanceOf"
	MethodApprove           = "approve"
	MethodOwner             = "owner"
	MethodTransferOwnership = "transferOwnership"
	MethodQuoter            = "quoter"
	MethodFeePpm            = "feePpm"
	MethodFeeAddress        = "feeAddress"
	MethodTokenLimiter      = "tokenLimiter"
	MethodTokenRegistry     = "tokenRegistry"
	MethodSetQuoter         = "setQuoter"
	MethodSetFee            = "setFee"
	MethodSetFeeAddress     = "setFeeAddress"
	MethodDeposit           = "deposit"
	MethodSwap              = "withdraw"
	MethodWithdraw          = "withdraw0"
	MethodLimitOf           = "limitOf"
	MethodSetLimitFor       = "setLimitFor"
	MethodPriceIndex        = "priceIndex"
	MethodSetPriceIndex     = "setPriceIndexValue"
	MethodEntry             = "entry"
	MethodEntryCount        = "entryCount"
	MethodAdd               = "add"
	MethodRemove            = "remove"
	MethodAddWriter         = "addWriter"
)

const ownableABIJSON = `
  {"inputs": [], "name": "owner", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "newOwner", "type": "address"}], "name": "transferOwnership", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"}`

const erc20ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}, {"internalType": "address", "name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "spender", "type": "address"}, {"internalType": "uint256", "name": "value", "type": "uint256"}], "name": "approve", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"}
]`

const swapPoolABIJSON = `[
  {"inputs": [{"internalType": "string", "name": "_name", "type": "string"}, {"internalType": "string", "name": "_symbol", "type": "string"}, {"internalType": "uint8", "name": "_decimals", "type": "uint8"}, {"internalType": "address", "name": "_tokenRegistry", "type": "address"}, {"internalType": "address", "name": "_tokenLimiter", "type": "address"}], "stateMutability": "nonpayable", "type": "constructor"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "quoter", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "feePpm", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "feeAddress", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "tokenLimiter", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "tokenRegistry", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_quoter", "type": "address"}], "name": "setQuoter", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "_fee", "type": "uint256"}], "name": "setFee", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_feeAddress", "type": "address"}], "name": "setFeeAddress", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}, {"internalType": "uint256", "name": "_value", "type": "uint256"}], "name": "deposit", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_outToken", "type": "address"}, {"internalType": "address", "name": "_inToken", "type": "address"}, {"internalType": "uint256", "name": "_value", "type": "uint256"}], "name": "withdraw", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_outToken", "type": "address"}, {"internalType": "uint256", "name": "_value", "type": "uint256"}], "name": "withdraw", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
` + ownableABIJSON + `
]`

const limiterABIJSON = `[
  {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}, {"internalType": "address", "name": "_holder", "type": "address"}], "name": "limitOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}, {"internalType": "address", "name": "_holder", "type": "address"}, {"internalType": "uint256", "name": "_value", "type": "uint256"}], "name": "setLimitFor", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
` + ownableABIJSON + `
]`

const quoterABIJSON = `[
  {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
  {"inputs": [{"internalType": "address", "name": "", "type": "address"}], "name": "priceIndex", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}, {"internalType": "uint256", "name": "_value", "type": "uint256"}], "name": "setPriceIndexValue", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
` + ownableABIJSON + `
]`

const tokenIndexABIJSON = `[
  {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
  {"inputs": [], "name": "entryCount", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "_idx", "type": "uint256"}], "name": "entry", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}], "name": "add", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}], "name": "remove", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_writer", "type": "address"}], "name": "addWriter", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
` + ownableABIJSON + `
]`

// Set bundles every parsed ABI the engine talks to.
type Set struct {
	ERC20      *abi.ABI
	SwapPool   *abi.ABI
	Limiter    *abi.ABI
	Quoter     *abi.ABI
	TokenIndex *abi.ABI
	// PoolIndex is the global pool registry; it shares the token index interface.
	PoolIndex *abi.ABI
}

var (
	abiSet     *Set
	abiSetOnce sync.Once
	abiSetErr  error
)

// ABIs returns the parsed ABI set.
func ABIs() (*Set, error) {
	abiSetOnce.Do(func() {
		abiSet, abiSetErr = parseAll()
	})
	return abiSet, abiSetErr
}

func parseAll() (*Set, error) {
	set := &Set{}
	for _, item := range []struct {
		dst  **abi.ABI
		json string
	}{
		{&set.ERC20, erc20ABIJSON},
		{&set.SwapPool, swapPoolABIJSON},
		{&set.Limiter, limiterABIJSON},
		{&set.Quoter, quoterABIJSON},
		{&set.TokenIndex, tokenIndexABIJSON},
	} {
		parsed, err := abi.JSON(strings.NewReader(item.json))
		if err != nil {
			return nil, err
		}
		*item.dst = &parsed
	}
	set.PoolIndex = set.TokenIndex
	return set, nil
}
