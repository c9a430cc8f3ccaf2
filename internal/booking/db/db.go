package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-adbooking/internal/database"
	"ms-adbooking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// Sentinel errors from guarded writes. The service layer maps them onto the
// public taxonomy.
var (
	ErrSlotTaken        = errors.New("slot key already occupied")
	ErrCampaignFull     = errors.New("campaign has no remaining slots")
	ErrRuleExhausted    = errors.New("pricing rule usage limit reached")
	ErrNoLoyaltyCredit  = errors.New("no loyalty discount available")
	ErrBookingCancelled = errors.New("booking is cancelled")
)

// ---------------- READS ----------------

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// SlotOccupied reports whether a confirmed booking holds the key. Pure read;
// payment status is irrelevant because pending-payment bookings occupy the
// key too.
func (d *DB) SlotOccupied(ctx context.Context, slotKey string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("slot_key = ?", slotKey).
		Where("status = ?", models.BookingConfirmed).
		Exists(ctx)
}

// ---------------- CREATE ----------------

// RuleConsumption asks the create transaction to burn a limited-usage rule
// and/or one loyalty credit along with the insert.
type RuleConsumption struct {
	RuleID        string
	LoyaltyUserID string
}

// CreateBooking inserts the booking and consumes discount allocations in one
// transaction. The partial unique index on slot_key is the authority for
// exclusivity: a duplicate insert surfaces as ErrSlotTaken no matter what
// any earlier availability check said.
func (d *DB) CreateBooking(ctx context.Context, booking models.Booking, consume *RuleConsumption) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrSlotTaken
			}
			return err
		}

		if consume == nil {
			return nil
		}
		now := time.Now()

		if consume.RuleID != "" {
			res, err := tx.NewUpdate().
				Model((*models.PricingRule)(nil)).
				Set("usage_count = usage_count + 1").
				Where("id = ?", consume.RuleID).
				Where("status = ?", models.RuleActive).
				Where("(usage_limit IS NULL OR usage_count < usage_limit)").
				Exec(ctx)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				return ErrRuleExhausted
			}
		}

		if consume.LoyaltyUserID != "" {
			if err := resetStaleLoyaltyTx(ctx, tx, consume.LoyaltyUserID, now); err != nil {
				return err
			}
			res, err := tx.NewUpdate().
				Model((*models.LoyaltyCounter)(nil)).
				Set("discounts_available = discounts_available - 1").
				Set("updated_at = ?", now).
				Where("user_id = ?", consume.LoyaltyUserID).
				Where("year = ?", now.Year()).
				Where("discounts_available > 0").
				Exec(ctx)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				return ErrNoLoyaltyCredit
			}
		}

		return nil
	})
}

// ---------------- PAYMENT ----------------

func (d *DB) CreateSession(ctx context.Context, session models.PaymentSession) error {
	_, err := d.Bun.NewInsert().Model(&session).Exec(ctx)
	return err
}

func (d *DB) GetSession(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := d.Bun.NewSelect().
		Model(&session).
		Where("session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOpenSessionForBooking finds a reusable checkout session, newest first.
func (d *DB) GetOpenSessionForBooking(ctx context.Context, bookingID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := d.Bun.NewSelect().
		Model(&session).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.SessionCreated).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetCompletedSessionForBooking returns the session that actually paid the
// booking, which carries the payment intent a refund is issued against.
func (d *DB) GetCompletedSessionForBooking(ctx context.Context, bookingID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := d.Bun.NewSelect().
		Model(&session).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.SessionCompleted).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateRefundStatus records the outcome of a refund attempt made after the
// cancellation was already committed.
func (d *DB) UpdateRefundStatus(ctx context.Context, bookingID string, status models.RefundStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("refund_status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookingID).
		Exec(ctx)
	return err
}

// ConfirmPaymentResult reports what a confirmation actually did, so webhook
// replays can be answered without side effects.
type ConfirmPaymentResult struct {
	Booking        *models.Booking
	AlreadyApplied bool
}

// ConfirmPayment applies a gateway confirmation keyed by session id. The
// whole decision runs in one transaction: replay detection, the guarded
// capacity increment, payment flip, and loyalty earn. Duplicate webhooks
// reach the AlreadyApplied branch and change nothing.
func (d *DB) ConfirmPayment(ctx context.Context, sessionID, paymentIntentID string, slotsPerDiscount int) (*ConfirmPaymentResult, error) {
	var result ConfirmPaymentResult
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var session models.PaymentSession
		if err := tx.NewSelect().
			Model(&session).
			Where("session_id = ?", sessionID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		var booking models.Booking
		if err := tx.NewSelect().
			Model(&booking).
			Where("id = ?", session.BookingID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		if session.Status == models.SessionCompleted || booking.PaymentStatus == models.PaymentPaid {
			result.Booking = &booking
			result.AlreadyApplied = true
			return nil
		}

		if booking.Status == models.BookingCancelled {
			return ErrBookingCancelled
		}

		now := time.Now()

		res, err := tx.NewUpdate().
			Model((*models.Campaign)(nil)).
			Set("booked_slots = booked_slots + ?", booking.Quantity).
			Where("id = ?", booking.CampaignID).
			Where("booked_slots + ? <= total_slots", booking.Quantity).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrCampaignFull
		}

		booking.PaymentStatus = models.PaymentPaid
		booking.UpdatedAt = now
		if _, err := tx.NewUpdate().
			Model(&booking).
			Column("payment_status", "updated_at").
			Where("id = ?", booking.ID).
			Exec(ctx); err != nil {
			return err
		}

		session.Status = models.SessionCompleted
		session.PaymentIntentID = paymentIntentID
		session.UpdatedAt = now
		if _, err := tx.NewUpdate().
			Model(&session).
			Column("status", "payment_intent_id", "updated_at").
			Where("session_id = ?", session.SessionID).
			Exec(ctx); err != nil {
			return err
		}

		if booking.CountsTowardLoyalty {
			if err := earnLoyaltyTx(ctx, tx, booking.UserID, booking.Quantity, slotsPerDiscount, now); err != nil {
				return err
			}
		}

		result.Booking = &booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkPaymentFailed records an expired or failed checkout session. Paid and
// cancelled bookings are left untouched.
func (d *DB) MarkPaymentFailed(ctx context.Context, sessionID string) (*models.Booking, error) {
	var booking *models.Booking
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var session models.PaymentSession
		if err := tx.NewSelect().
			Model(&session).
			Where("session_id = ?", sessionID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		now := time.Now()
		if _, err := tx.NewUpdate().
			Model((*models.PaymentSession)(nil)).
			Set("status = ?", models.SessionExpired).
			Set("updated_at = ?", now).
			Where("session_id = ?", sessionID).
			Where("status = ?", models.SessionCreated).
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("payment_status = ?", models.PaymentFailed).
			Set("updated_at = ?", now).
			Where("id = ?", session.BookingID).
			Where("payment_status = ?", models.PaymentPending).
			Where("status = ?", models.BookingConfirmed).
			Exec(ctx); err != nil {
			return err
		}

		var b models.Booking
		if err := tx.NewSelect().
			Model(&b).
			Where("id = ?", session.BookingID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		booking = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ---------------- CANCELLATION ----------------

// CancelBooking flips the booking to cancelled and, when payment had claimed
// campaign capacity, releases it with a floor at zero. The status guard makes
// concurrent cancels of one booking resolve to a single winner.
func (d *DB) CancelBooking(ctx context.Context, bookingID string, refundStatus models.RefundStatus, refundAmount *int64, now time.Time) (*models.Booking, error) {
	var cancelled *models.Booking
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var booking models.Booking
		if err := tx.NewSelect().
			Model(&booking).
			Where("id = ?", bookingID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		if booking.Status == models.BookingCancelled {
			return ErrBookingCancelled
		}

		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", models.BookingCancelled).
			Set("cancellation_date = ?", now).
			Set("refund_status = ?", refundStatus).
			Set("refund_amount_cents = ?", refundAmount).
			Set("updated_at = ?", now).
			Where("id = ?", bookingID).
			Where("status = ?", models.BookingConfirmed).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrBookingCancelled
		}

		// Capacity was only claimed at payment time, so only paid bookings
		// release it.
		if booking.PaymentStatus == models.PaymentPaid {
			res, err := tx.NewUpdate().
				Model((*models.Campaign)(nil)).
				Set("booked_slots = booked_slots - ?", booking.Quantity).
				Where("id = ?", booking.CampaignID).
				Where("booked_slots >= ?", booking.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				// Floor at zero when accounting drifted.
				if _, err := tx.NewUpdate().
					Model((*models.Campaign)(nil)).
					Set("booked_slots = 0").
					Where("id = ?", booking.CampaignID).
					Exec(ctx); err != nil {
					return err
				}
			}
		}

		booking.Status = models.BookingCancelled
		booking.CancellationDate = &now
		booking.RefundStatus = refundStatus
		booking.RefundAmountCents = refundAmount
		booking.UpdatedAt = now
		cancelled = &booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ---------------- APPROVAL / ARTWORK ----------------

// TransitionApproval moves approval_status from exactly `from` to `to`;
// reports false when the booking was in any other state.
func (d *DB) TransitionApproval(ctx context.Context, bookingID string, from, to models.ApprovalStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("approval_status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookingID).
		Where("approval_status = ?", from).
		Where("status = ?", models.BookingConfirmed).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SubmitArtwork stores the uploaded file path and moves the artwork into
// review. Fresh uploads and post-rejection resubmissions both land here.
func (d *DB) SubmitArtwork(ctx context.Context, bookingID, artworkPath string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("artwork_status = ?", models.ArtworkUnderReview).
		Set("artwork_path = ?", artworkPath).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookingID).
		Where("artwork_status IN (?)", bun.In([]models.ArtworkStatus{models.ArtworkPendingUpload, models.ArtworkRejected})).
		Where("status = ?", models.BookingConfirmed).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ReviewArtwork resolves an under_review artwork. Approval records the
// generated proof path; rejection loops the booking back to pending_upload
// via the rejected state.
func (d *DB) ReviewArtwork(ctx context.Context, bookingID string, approve bool, proofPath string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookingID).
		Where("artwork_status = ?", models.ArtworkUnderReview).
		Where("status = ?", models.BookingConfirmed)
	if approve {
		q = q.Set("artwork_status = ?", models.ArtworkApproved).
			Set("proof_path = ?", proofPath)
	} else {
		q = q.Set("artwork_status = ?", models.ArtworkRejected)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ---------------- LOYALTY ----------------

// resetStaleLoyaltyTx zeroes a counter row left over from a previous year.
// Runs before any same-transaction read or decrement of the row.
func resetStaleLoyaltyTx(ctx context.Context, tx bun.Tx, userID string, now time.Time) error {
	_, err := tx.NewUpdate().
		Model((*models.LoyaltyCounter)(nil)).
		Set("slots_earned = 0").
		Set("discounts_available = 0").
		Set("year = ?", now.Year()).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Where("year < ?", now.Year()).
		Exec(ctx)
	return err
}

// earnLoyaltyTx credits quantity slots and converts each crossing of
// slotsPerDiscount into one available discount.
func earnLoyaltyTx(ctx context.Context, tx bun.Tx, userID string, quantity, slotsPerDiscount int, now time.Time) error {
	if slotsPerDiscount < 1 {
		slotsPerDiscount = 5
	}
	year := now.Year()

	var counter models.LoyaltyCounter
	err := tx.NewSelect().
		Model(&counter).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	exists := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		exists = false
		counter = models.LoyaltyCounter{UserID: userID, Year: year}
	}

	if counter.Year < year {
		counter.SlotsEarned = 0
		counter.DiscountsAvailable = 0
		counter.Year = year
	}

	before := counter.SlotsEarned
	counter.SlotsEarned += quantity
	counter.DiscountsAvailable += counter.SlotsEarned/slotsPerDiscount - before/slotsPerDiscount
	counter.UpdatedAt = now

	if exists {
		_, err = tx.NewUpdate().
			Model(&counter).
			Column("slots_earned", "discounts_available", "year", "updated_at").
			Where("user_id = ?", userID).
			Exec(ctx)
	} else {
		_, err = tx.NewInsert().Model(&counter).Exec(ctx)
	}
	return err
}

// GetLoyaltyCounter is a plain read used by booking views.
func (d *DB) GetLoyaltyCounter(ctx context.Context, userID string) (*models.LoyaltyCounter, error) {
	var counter models.LoyaltyCounter
	err := d.Bun.NewSelect().
		Model(&counter).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &counter, nil
}
