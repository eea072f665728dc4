package service

import "errors"

var (
	// ErrInvalidInput 输入缺失或格式错误，具体原因通过 %w 附加
	ErrInvalidInput = errors.New("invalid input")
	// ErrPermissionDenied 调用方不是目标文档的所有者
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUserNotFound 指定用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrReminderNotFound 指定提醒不存在
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrCouponNotFound 指定优惠券不存在
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrMessageNotFound 指定消息不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrEventNotFound 指定日历事件不存在
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrEmailTaken 注册邮箱已被占用
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials 邮箱或密码错误
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyLinked 任一方已绑定伴侣
	ErrAlreadyLinked = errors.New("partner already linked")
	// ErrNotLinked 操作需要已绑定的伴侣
	ErrNotLinked = errors.New("no partner linked")
	// ErrInsufficientStars 余额不足以完成转账
	ErrInsufficientStars = errors.New("insufficient stars")
	// ErrCouponRedeemed 优惠券已被兑换
	ErrCouponRedeemed = errors.New("coupon already redeemed")
	// ErrContention 事务多次重试后仍然冲突
	ErrContention = errors.New("transaction contention")
)
