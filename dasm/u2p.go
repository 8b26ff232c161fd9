package dasm

import (
	"bytes"
	"time"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/dasmcache/arena"
	"github.com/lunixbochs/dasmcache/models"
)

// workOrder is the wire form of one decode request on the U2P ring.
type workOrder struct {
	HashLo       uint64 `struc:"uint64,little"`
	HashHi       uint64 `struc:"uint64,little"`
	VAddr        uint64 `struc:"uint64,little"`
	Arch         uint32 `struc:"uint32,little"`
	StyleFlags   uint32 `struc:"uint32,little"`
	Syntax       uint32 `struc:"uint32,little"`
	BaseVAddr    uint64 `struc:"uint64,little"`
	PathSize     uint64 `struc:"uint64,little,sizeof=Path"`
	Path         []byte
	MinTimestamp uint64 `struc:"uint64,little"`
}

func packOrder(hash models.Hash, params *models.Params) ([]byte, error) {
	order := workOrder{
		HashLo:       hash.Lo,
		HashHi:       hash.Hi,
		VAddr:        params.VAddr,
		Arch:         uint32(params.Arch),
		StyleFlags:   uint32(params.StyleFlags),
		Syntax:       uint32(params.Syntax),
		BaseVAddr:    params.BaseVAddr,
		Path:         []byte(params.DbgiKey.Path),
		MinTimestamp: params.DbgiKey.MinTimestamp,
	}
	var buf bytes.Buffer
	if err := struc.Pack(&buf, &order); err != nil {
		return nil, errors.Wrap(err, "pack work order")
	}
	return buf.Bytes(), nil
}

func unpackOrder(payload []byte) (models.Hash, models.Params, error) {
	var order workOrder
	if err := struc.Unpack(bytes.NewReader(payload), &order); err != nil {
		return models.Hash{}, models.Params{}, errors.Wrap(err, "unpack work order")
	}
	hash := models.Hash{Lo: order.HashLo, Hi: order.HashHi}
	params := models.Params{
		VAddr:      order.VAddr,
		Arch:       models.Arch(order.Arch),
		StyleFlags: models.StyleFlags(order.StyleFlags),
		Syntax:     models.Syntax(order.Syntax),
		BaseVAddr:  order.BaseVAddr,
		DbgiKey: models.DbgiKey{
			Path:         string(order.Path),
			MinTimestamp: order.MinTimestamp,
		},
	}
	return hash, params, nil
}

// u2pEnqueue submits a work order, waiting for ring capacity until
// deadline (zero = wait forever).
func (c *Cache) u2pEnqueue(hash models.Hash, params *models.Params, deadline time.Time) bool {
	msg, err := packOrder(hash, params)
	if err != nil {
		c.logf("[dasm] %v", err)
		return false
	}
	return c.u2p.Enqueue(msg, deadline)
}

// u2pTryEnqueue submits only if ring capacity already exists; the
// evictor uses this so a full ring can never wedge a stripe lock.
func (c *Cache) u2pTryEnqueue(hash models.Hash, params *models.Params) bool {
	msg, err := packOrder(hash, params)
	if err != nil {
		return false
	}
	return c.u2p.TryEnqueue(msg)
}

// u2pDequeue blocks for the next work order; the raw order bytes land
// in the caller's scratch arena. ok is false only once the cache stops.
func (c *Cache) u2pDequeue(scratch *arena.Arena) (models.Hash, models.Params, bool) {
	for {
		payload, ok := c.u2p.Dequeue(scratch)
		if !ok {
			return models.Hash{}, models.Params{}, false
		}
		hash, params, err := unpackOrder(payload)
		if err != nil {
			c.logf("[dasm] dropping bad work order: %v", err)
			continue
		}
		return hash, params, true
	}
}
