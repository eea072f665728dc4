package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twogether/internal/db"
	"github.com/twogether/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CouponService 管理伴侣之间的优惠券，兑换时以星星支付给创建者
type CouponService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
}

// CouponInput 创建优惠券所需字段
type CouponInput struct {
	Title       string
	Description string
	Cost        int
}

// NewCouponService 构造 CouponService
func NewCouponService(gdb *gorm.DB, clock Clock, notifier Notifier) *CouponService {
	return &CouponService{db: gdb, clock: clock, notifier: notifierOrNop(notifier)}
}

// Create 为伴侣创建一张优惠券
func (s *CouponService) Create(ctx context.Context, from string, input CouponInput) (*db.Coupon, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.Cost < 0 {
		return nil, fmt.Errorf("%w: cost cannot be negative", ErrInvalidInput)
	}

	partnerID, err := lookupPartner(s.db.WithContext(ctx), from)
	if err != nil {
		return nil, err
	}
	if partnerID == "" {
		return nil, ErrNotLinked
	}

	coupon := db.Coupon{
		From:        from,
		To:          partnerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Cost:        input.Cost,
		Status:      db.CouponStatusAvailable,
	}
	if err := s.db.WithContext(ctx).Create(&coupon).Error; err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	s.notifier.Publish(couponsTopic(from))
	s.notifier.Publish(couponsTopic(partnerID))
	return &coupon, nil
}

// List 返回 uid 创建或收到的优惠券
func (s *CouponService) List(uid string) ([]db.Coupon, error) {
	var coupons []db.Coupon
	if err := s.db.Where(`"from" = ? OR "to" = ?`, uid, uid).
		Order("created_at DESC").
		Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// Redeem 由收券人兑换优惠券：状态置为 redeemed 并把 cost 颗星转给创建者
func (s *CouponService) Redeem(ctx context.Context, uid, id string) (*db.Coupon, error) {
	var coupon db.Coupon
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&coupon, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return fmt.Errorf("load coupon: %w", err)
		}
		if coupon.To != uid {
			return ErrPermissionDenied
		}
		if coupon.Status == db.CouponStatusRedeemed {
			return ErrCouponRedeemed
		}

		now := s.clock.Now()
		result := tx.Model(&db.Coupon{}).
			Where("id = ? AND status = ?", coupon.ID, db.CouponStatusAvailable).
			Updates(map[string]interface{}{"status": db.CouponStatusRedeemed, "redeemed_at": now})
		if result.Error != nil {
			return fmt.Errorf("redeem coupon: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrCouponRedeemed
		}
		coupon.Status = db.CouponStatusRedeemed
		coupon.RedeemedAt = &now

		if coupon.Cost > 0 {
			if _, err := transferStars(tx, uid, coupon.From, coupon.Cost, fmt.Sprintf("Redeemed coupon: %s", coupon.Title), "coupon"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if coupon.Cost > 0 {
		metrics.RecordStarsCredited(db.TransactionTypeStarTransaction, coupon.Cost)
		s.notifier.Publish(starsTopic(uid))
		s.notifier.Publish(starsTopic(coupon.From))
	}
	s.notifier.Publish(couponsTopic(coupon.From))
	s.notifier.Publish(couponsTopic(coupon.To))
	return &coupon, nil
}

func couponsTopic(uid string) string {
	return "coupons:" + uid
}
