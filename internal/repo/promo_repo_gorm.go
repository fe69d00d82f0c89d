package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"promo-code-service/internal/domain"
)

type PromoCodeRepo struct{ db *gorm.DB }

var _ domain.PromoCodeRepository = (*PromoCodeRepo)(nil)

func NewPromoCodeRepo(db *gorm.DB) *PromoCodeRepo { return &PromoCodeRepo{db: db} }

func (r *PromoCodeRepo) Create(ctx context.Context, p *domain.PromoCode, grantUserIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Users", "Creator").Create(p).Error; err != nil {
			return err
		}
		for _, uid := range grantUserIDs {
			grant := domain.PromoCodeUser{PromoCodeID: p.ID, UserID: uid}
			if err := tx.Create(&grant).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PromoCodeRepo) FindByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := r.db.WithContext(ctx).First(&p, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PromoCodeRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoCode{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *PromoCodeRepo) List(ctx context.Context) ([]domain.PromoCode, error) {
	var codes []domain.PromoCode
	err := r.db.WithContext(ctx).
		Preload("Users", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "email")
		}).
		Preload("Creator", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		}).
		Order("created_at desc").
		Find(&codes).Error
	return codes, err
}

func (r *PromoCodeRepo) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.PromoCode{}).
		Where("id = ?", id).
		UpdateColumn("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PromoCodeRepo) ListGrantUserIDs(ctx context.Context, promoID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.PromoCodeUser{}).
		Where("promo_code_id = ?", promoID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *PromoCodeRepo) HasAnyGrant(ctx context.Context, promoID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoCodeUser{}).
		Where("promo_code_id = ?", promoID).Count(&n).Error
	return n > 0, err
}

func (r *PromoCodeRepo) HasGrant(ctx context.Context, promoID, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoCodeUser{}).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).Count(&n).Error
	return n > 0, err
}

func (r *PromoCodeRepo) CountUsages(ctx context.Context, promoID, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoCodeUsage{}).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).Count(&n).Error
	return n, err
}

func (r *PromoCodeRepo) AppendUsage(ctx context.Context, promoID, userID string, usedAt time.Time) error {
	usage := domain.PromoCodeUsage{PromoCodeID: promoID, UserID: userID, UsedAt: usedAt}
	return r.db.WithContext(ctx).Create(&usage).Error
}

// IncrementUsageCounter runs a single UPDATE expression so two concurrent
// redemptions are both counted instead of losing one to a racy
// read-modify-write.
func (r *PromoCodeRepo) IncrementUsageCounter(ctx context.Context, promoID string) error {
	return r.db.WithContext(ctx).Model(&domain.PromoCode{}).
		Where("id = ?", promoID).
		UpdateColumn("current_usages", gorm.Expr("current_usages + ?", 1)).Error
}
