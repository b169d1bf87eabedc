package model

import (
	"time"

	"github.com/google/uuid"
)

// Well-known payment method codes. The catalog is seeded (cmd/seed) and
// extensible; code is the stable identifier used in close declarations.
const (
	PaymentMethodCash       = "cash"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodTransfer   = "transfer"
	PaymentMethodQR         = "qr"
	PaymentMethodCheck      = "check"
	PaymentMethodOther      = "other"
)

type PaymentMethod struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code      string    `gorm:"type:varchar(30);not null;uniqueIndex"`
	Name      string    `gorm:"type:varchar(100);not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
}
