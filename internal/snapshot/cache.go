package snapshot

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"voucherPools/internal/model"
)

// VoucherCache caches immutable voucher identity by address. An entry is only
// stored once decimals were read, so a hit always carries authoritative decimals.
type VoucherCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Voucher
}

func NewVoucherCache() *VoucherCache {
	return &VoucherCache{data: make(map[common.Address]model.Voucher)}
}

func (c *VoucherCache) Get(address common.Address) (model.Voucher, bool) {
	c.mu.RLock()
	voucher, ok := c.data[address]
	c.mu.RUnlock()
	return voucher, ok
}

func (c *VoucherCache) Set(voucher model.Voucher) {
	c.mu.Lock()
	c.data[voucher.Address] = voucher
	c.mu.Unlock()
}

func (c *VoucherCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
