package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-adbooking/internal/models"
)

// schemaModels lists every table in dependency order.
var schemaModels = []any{
	(*models.Campaign)(nil),
	(*models.Route)(nil),
	(*models.Industry)(nil),
	(*models.IndustrySubcategory)(nil),
	(*models.CampaignRoute)(nil),
	(*models.CampaignIndustry)(nil),
	(*models.PricingRule)(nil),
	(*models.LoyaltyCounter)(nil),
	(*models.Booking)(nil),
	(*models.PaymentSession)(nil),
	(*models.WaitlistEntry)(nil),
}

// Partial unique indexes carry the two exclusivity rules the query layer
// relies on: one confirmed booking per slot key, one active waitlist entry
// per user+slot. Written as raw SQL because both postgres and sqlite accept
// this form.
var schemaIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bookings_slot_key
		ON bookings (slot_key) WHERE status = 'confirmed'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_waitlist_dedup
		ON waitlist_entries (dedup_key) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_campaign ON bookings (campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_slot ON waitlist_entries (slot_key, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_sessions_booking ON payment_sessions (booking_id)`,
}

// CreateSchema creates every table and index the service uses. Production
// startup runs it after the migration runner as a safety net; tests run it
// against in-memory sqlite to get the same schema the queries assume.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range schemaIndexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ResetSchema drops and recreates everything. Test-only convenience.
func ResetSchema(ctx context.Context, db *bun.DB) error {
	for i := len(schemaModels) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(schemaModels[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", schemaModels[i], err)
		}
	}
	return CreateSchema(ctx, db)
}
