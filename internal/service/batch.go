package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// MaxBatchSize 是单个批次（单个事务）内最多处理的文档数
const MaxBatchSize = 500

// Identified 是可按主键翻页的文档
type Identified interface {
	DocID() string
}

// BatchApply 以主键游标分页扫描 scope 选出的文档，每批在独立事务中交给 apply
// size 超出 [1, MaxBatchSize] 时按上限处理；返回处理的文档总数
func BatchApply[T Identified](ctx context.Context, gdb *gorm.DB, scope func(*gorm.DB) *gorm.DB, size int, apply func(tx *gorm.DB, batch []T) error) (int, error) {
	return BatchApplyCommitted(ctx, gdb, scope, size, apply, nil)
}

// BatchApplyCommitted 与 BatchApply 相同，每批事务提交后调用一次 committed
// apply 可能因锁冲突被重试，计数与通知等副作用应放在 committed 中
func BatchApplyCommitted[T Identified](ctx context.Context, gdb *gorm.DB, scope func(*gorm.DB) *gorm.DB, size int, apply func(tx *gorm.DB, batch []T) error, committed func(batch []T)) (int, error) {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	total := 0
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var batch []T
		query := gdb.WithContext(ctx).Model(new(T))
		if scope != nil {
			query = scope(query)
		}
		if err := query.Where("id > ?", cursor).Order("id ASC").Limit(size).Find(&batch).Error; err != nil {
			return total, fmt.Errorf("load batch: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		if err := runInTx(ctx, gdb, func(tx *gorm.DB) error {
			return apply(tx, batch)
		}); err != nil {
			return total, fmt.Errorf("apply batch after %d documents: %w", total, err)
		}

		if committed != nil {
			committed(batch)
		}
		total += len(batch)
		cursor = batch[len(batch)-1].DocID()
		if len(batch) < size {
			return total, nil
		}
	}
}

// ids 提取批次内的主键
func ids[T Identified](batch []T) []string {
	out := make([]string, 0, len(batch))
	for _, item := range batch {
		out = append(out, item.DocID())
	}
	return out
}
