package cartreminder

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/logging"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/money"
)

// Mailer is the send operation the job needs from the email service.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type JobConfig struct {
	AbandonedAfter   time.Duration
	ReminderInterval time.Duration
	MaxReminders     int
	StoreName        string
	StoreWebURL      string
}

type Job struct {
	DB     *gorm.DB
	Mailer Mailer
	Cfg    JobConfig

	running atomic.Bool
}

type RunResult struct {
	Sent   int `json:"sent"`
	Errors int `json:"errors"`
}

// Start runs the job once after startupDelay and then on every interval
// tick until ctx is cancelled. The early run catches carts that went
// abandoned while the process was down, instead of waiting a full interval
// after a restart.
func (j *Job) Start(ctx context.Context, startupDelay, interval time.Duration) {
	startup := time.NewTimer(startupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		j.runLogged(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	l := logging.FromContext(ctx).With("job", "abandoned_cart")
	res, err := j.Run(ctx)
	if err != nil {
		l.Error("reminder_run_failed", "error", err)
		return
	}
	if res.Sent > 0 || res.Errors > 0 {
		l.Info("reminder_run", "sent", res.Sent, "errors", res.Errors)
	}
}

// Run processes all reminder-eligible carts once. If a run is already in
// progress the call is a no-op reporting zero sent and zero errors. One
// customer failing never aborts the rest of the batch.
func (j *Job) Run(ctx context.Context) (RunResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return RunResult{}, nil
	}
	defer j.running.Store(false)

	l := logging.FromContext(ctx).With("job", "abandoned_cart")
	now := time.Now().UTC()
	cutoff := now.Add(-j.Cfg.AbandonedAfter)

	var reminders []models.CartReminder
	err := j.DB.WithContext(ctx).
		Where("cart_last_updated < ? AND reminder_count < ?", cutoff, j.Cfg.MaxReminders).
		Find(&reminders).Error
	if err != nil {
		return RunResult{}, err
	}

	var res RunResult
	for i := range reminders {
		rem := &reminders[i]

		if rem.LastReminderSent != nil && now.Sub(*rem.LastReminderSent) < j.Cfg.ReminderInterval {
			continue
		}

		sent, err := j.remind(ctx, rem, now)
		if err != nil {
			res.Errors++
			l.Warn("reminder_failed", "customer_id", rem.CustomerID, "error", err)
			continue
		}
		if sent {
			res.Sent++
		}
	}

	l.Info("abandoned_cart_done", "sent", res.Sent, "errors", res.Errors)
	return res, nil
}

func (j *Job) remind(ctx context.Context, rem *models.CartReminder, now time.Time) (bool, error) {
	var customer models.DeliveryCustomer
	if err := j.DB.WithContext(ctx).First(&customer, rem.CustomerID).Error; err != nil {
		return false, fmt.Errorf("loading customer: %w", err)
	}
	if customer.ApprovalStatus != models.ApprovalApproved {
		// Not an error: unapproved customers are simply ineligible.
		return false, nil
	}

	items, valueCents, err := j.cartContents(ctx, rem.CustomerID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		// Cart emptied since the reminder row was written; the row
		// should not exist anymore.
		return false, Clear(j.DB.WithContext(ctx), rem.CustomerID)
	}

	subject := fmt.Sprintf("You left something behind at %s", j.Cfg.StoreName)
	html := j.buildEmail(customer.FirstName, items, valueCents)
	if err := j.Mailer.Send(ctx, customer.Email, subject, html); err != nil {
		return false, fmt.Errorf("sending reminder: %w", err)
	}

	err = j.DB.WithContext(ctx).Model(rem).Updates(map[string]any{
		"last_reminder_sent": now,
		"reminder_count":     rem.ReminderCount + 1,
	}).Error
	return true, err
}

type cartLine struct {
	Name     string
	Quantity int
	Cents    int64
}

// cartContents loads the customer's cart lines priced at salePrice when one
// is present and positive, else the list price.
func (j *Job) cartContents(ctx context.Context, customerID uint) ([]cartLine, int64, error) {
	var items []models.CartItem
	err := j.DB.WithContext(ctx).Where("customer_id = ?", customerID).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}

	var lines []cartLine
	var total int64
	for _, it := range items {
		var p models.DeliveryProduct
		if err := j.DB.WithContext(ctx).First(&p, it.ProductID).Error; err != nil {
			continue
		}
		cents, err := effectivePriceCents(&p)
		if err != nil {
			continue
		}
		lines = append(lines, cartLine{Name: p.Name, Quantity: it.Quantity, Cents: cents * int64(it.Quantity)})
		total += cents * int64(it.Quantity)
	}
	return lines, total, nil
}

func effectivePriceCents(p *models.DeliveryProduct) (int64, error) {
	if p.SalePrice != "" {
		cents, err := money.CentsFromString(p.SalePrice)
		if err == nil && cents > 0 {
			return cents, nil
		}
	}
	return money.CentsFromString(p.Price)
}

func (j *Job) buildEmail(firstName string, lines []cartLine, totalCents int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p><p>Your cart is still waiting:</p><ul>", firstName)
	for _, l := range lines {
		fmt.Fprintf(&b, "<li>%d x %s - $%s</li>", l.Quantity, l.Name, money.StringFromCents(l.Cents))
	}
	fmt.Fprintf(&b, "</ul><p>Cart total: $%s</p>", money.StringFromCents(totalCents))
	fmt.Fprintf(&b, `<p><a href="%s/cart">Finish your order</a></p>`, j.Cfg.StoreWebURL)
	return b.String()
}
