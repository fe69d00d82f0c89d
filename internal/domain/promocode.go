package domain

import (
	"context"
	"time"
)

// Discount types.
const (
	PromoTypePercentage = "percentage"
	PromoTypeValue      = "value"
)

// PromoTypes lists the accepted discount types.
func PromoTypes() []string {
	return []string{PromoTypePercentage, PromoTypeValue}
}

type PromoCode struct {
	ID               string     `gorm:"primaryKey;size:32" json:"id"`
	Code             string     `gorm:"uniqueIndex;size:20;not null" json:"code"`
	Type             string     `gorm:"size:16;not null" json:"type"`
	Value            float64    `gorm:"type:decimal(8,2);not null" json:"value"`
	ExpiryDate       *time.Time `json:"expiry_date"`
	MaxUsages        *int       `json:"max_usages"`
	MaxUsagesPerUser *int       `json:"max_usages_per_user"`
	CurrentUsages    int        `gorm:"not null;default:0" json:"current_usages"`
	IsActive         bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedBy        string     `gorm:"size:32;not null" json:"created_by"`

	// Restriction grants; a non-empty set limits the code to exactly these users.
	Users   []User `gorm:"many2many:promo_code_users;" json:"users,omitempty"`
	Creator *User  `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PromoCode) TableName() string { return "promo_codes" }

// PromoCodeUser is a restriction grant: one (code, user) allow-list row.
// Registered as the join table for PromoCode.Users.
type PromoCodeUser struct {
	PromoCodeID string    `gorm:"primaryKey;size:32" json:"promo_code_id"`
	UserID      string    `gorm:"primaryKey;size:32" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PromoCodeUser) TableName() string { return "promo_code_users" }

// PromoCodeUsage is one redemption of a code by a user. A user may
// accumulate several rows, up to the per-user cap.
type PromoCodeUsage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PromoCodeID string    `gorm:"size:32;not null;index:idx_promo_user_usage" json:"promo_code_id"`
	UserID      string    `gorm:"size:32;not null;index:idx_promo_user_usage" json:"user_id"`
	UsedAt      time.Time `gorm:"not null" json:"used_at"`
}

func (PromoCodeUsage) TableName() string { return "promo_code_usages" }

// PromoCodeRepository gives the engine explicit access to codes, their
// restriction grants, and the usage log. Not-found lookups return nil, nil.
type PromoCodeRepository interface {
	// Create persists the code and its restriction grants together.
	Create(ctx context.Context, p *PromoCode, grantUserIDs []string) error
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]PromoCode, error)
	SetActive(ctx context.Context, id string, active bool) error

	ListGrantUserIDs(ctx context.Context, promoID string) ([]string, error)
	HasAnyGrant(ctx context.Context, promoID string) (bool, error)
	HasGrant(ctx context.Context, promoID, userID string) (bool, error)

	CountUsages(ctx context.Context, promoID, userID string) (int64, error)
	AppendUsage(ctx context.Context, promoID, userID string, usedAt time.Time) error
	// IncrementUsageCounter adds one to current_usages with a single
	// storage-level expression, safe under concurrent redemptions.
	IncrementUsageCounter(ctx context.Context, promoID string) error
}
