package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

const rollupKeyPrefix = "rollup:"

// allStates pins the hash field set so a count that drops to zero is written
// as zero instead of lingering at its old value.
var allStates = []domain.UnitState{
	domain.StateReceivedOrigin,
	domain.StateInTransitOrigin,
	domain.StateInTransitDestination,
	domain.StateAvailableDestination,
	domain.StateReserved,
	domain.StateSold,
	domain.StateExpired,
	domain.StateDamaged,
}

// syncRollupScript writes only the hash fields whose value differs and
// returns their names, so counter resync stays cheap and atomic.
var syncRollupScript = redis.NewScript(`
local key = KEYS[1]
local changed = {}
for i = 1, #ARGV, 2 do
	local field = ARGV[i]
	local value = ARGV[i+1]
	if redis.call('HGET', key, field) ~= value then
		redis.call('HSET', key, field, value)
		table.insert(changed, field)
	end
end
return changed
`)

// RedisAdapter holds the persisted roll-up cache: one hash per
// (product, warehouse). The cache is always re-derivable from the ledger.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func rollupKey(productID, warehouseID string) string {
	return rollupKeyPrefix + productID + ":" + warehouseID
}

func (r *RedisAdapter) GetRollup(ctx context.Context, productID, warehouseID string) (*domain.StockRollup, error) {
	fields, err := r.client.HGetAll(ctx, rollupKey(productID, warehouseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall rollup: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseRollup(productID, warehouseID, fields)
}

func (r *RedisAdapter) PutRollup(ctx context.Context, rollup domain.StockRollup) error {
	fields := rollupFields(rollup)
	fields["rebuilt_at"] = rollup.RebuiltAt.UTC().Format(time.RFC3339)
	args := make(map[string]any, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	if err := r.client.HSet(ctx, rollupKey(rollup.ProductID, rollup.WarehouseID), args).Err(); err != nil {
		return fmt.Errorf("hset rollup: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SyncRollup(ctx context.Context, rollup domain.StockRollup) ([]string, error) {
	fields := rollupFields(rollup)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	argv := make([]any, 0, len(fields)*2)
	for _, name := range names {
		argv = append(argv, name, fields[name])
	}

	result, err := syncRollupScript.Run(ctx, r.client,
		[]string{rollupKey(rollup.ProductID, rollup.WarehouseID)}, argv...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("sync rollup: %w", err)
	}
	return result, nil
}

// rollupFields returns the comparable hash fields. rebuilt_at is kept out so
// counter resync converges: a second run over an unchanged ledger must report
// zero changed fields.
func rollupFields(r domain.StockRollup) map[string]string {
	fields := map[string]string{
		"total_units":    strconv.Itoa(r.TotalUnits),
		"free_units":     strconv.Itoa(r.FreeUnits),
		"valuation":      r.Valuation.String(),
		"avg_unit_cost":  r.AvgUnitCost.String(),
		"expiring_30":    strconv.Itoa(r.Expiring30),
		"expiring_90":    strconv.Itoa(r.Expiring90),
		"critical_stock": boolField(r.CriticalStock),
	}
	for _, st := range allStates {
		fields["count:"+string(st)] = strconv.Itoa(r.CountsByState[st])
	}
	return fields
}

func parseRollup(productID, warehouseID string, fields map[string]string) (*domain.StockRollup, error) {
	r := &domain.StockRollup{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		CountsByState: map[domain.UnitState]int{},
	}

	var err error
	if r.TotalUnits, err = strconv.Atoi(fields["total_units"]); err != nil {
		return nil, fmt.Errorf("parse total_units: %w", err)
	}
	if r.FreeUnits, err = strconv.Atoi(fields["free_units"]); err != nil {
		return nil, fmt.Errorf("parse free_units: %w", err)
	}
	if r.Valuation, err = decimal.NewFromString(fields["valuation"]); err != nil {
		return nil, fmt.Errorf("parse valuation: %w", err)
	}
	if r.AvgUnitCost, err = decimal.NewFromString(fields["avg_unit_cost"]); err != nil {
		return nil, fmt.Errorf("parse avg_unit_cost: %w", err)
	}
	if r.Expiring30, err = strconv.Atoi(fields["expiring_30"]); err != nil {
		return nil, fmt.Errorf("parse expiring_30: %w", err)
	}
	if r.Expiring90, err = strconv.Atoi(fields["expiring_90"]); err != nil {
		return nil, fmt.Errorf("parse expiring_90: %w", err)
	}
	r.CriticalStock = fields["critical_stock"] == "1"
	if raw := fields["rebuilt_at"]; raw != "" {
		if r.RebuiltAt, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, fmt.Errorf("parse rebuilt_at: %w", err)
		}
	}
	for _, st := range allStates {
		if raw, ok := fields["count:"+string(st)]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("parse count %s: %w", st, err)
			}
			if n != 0 {
				r.CountsByState[st] = n
			}
		}
	}
	return r, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
