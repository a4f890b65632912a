package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/payments"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

const day = 24 * 60 * 60

// Plan is a subscription offered to members.
type Plan struct {
	models.Subscription
	Cost string `json:"cost"`
}

// Entry is one of the member's subscription log rows.
type Entry struct {
	models.SubscriptionLog
	Name    string `json:"name"`
	Pending bool   `json:"pending"`
}

// SubscriptionsPage is the context of the subscriptions area.
type SubscriptionsPage struct {
	Plans    []Plan   `json:"plans"`
	Entries  []Entry  `json:"entries"`
	Gateways []string `json:"gateways"`
}

func pending(l models.SubscriptionLog) bool {
	return l.Status == models.SubscriptionInactive && l.PaymentsPending > 0
}

// Subscriptions lists the active plans and the member's entries.
func (s *Service) Subscriptions(ctx context.Context, v *permissions.Viewer, memberID int64) (*SubscriptionsPage, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwnOr(v, memberID, permissions.AdminForum); err != nil {
		return nil, err
	}
	plans, err := s.store.ListSubscriptions(ctx, true)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListSubscriptions(ctx, false)
	if err != nil {
		return nil, err
	}
	names := map[int64]string{}
	for _, p := range all {
		names[p.ID] = p.Name
	}
	logs, err := s.store.MemberSubscriptions(ctx, memberID)
	if err != nil {
		return nil, err
	}
	page := &SubscriptionsPage{}
	if s.payments != nil {
		page.Gateways = s.payments.Names()
	}
	for _, p := range plans {
		page.Plans = append(page.Plans, Plan{Subscription: p, Cost: payments.FormatCost(p.CostCents, p.Currency)})
	}
	for _, l := range logs {
		if l.Status == models.SubscriptionActive || pending(l) {
			page.Entries = append(page.Entries, Entry{SubscriptionLog: l, Name: names[l.SubscriptionID], Pending: pending(l)})
		}
	}
	return page, nil
}

// Subscribe creates a pending entry and starts a payment with the gateway.
func (s *Service) Subscribe(ctx context.Context, v *permissions.Viewer, memberID, subscriptionID int64, gateway string) (*payments.Request, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := requireOwnOr(v, memberID, permissions.AdminForum); err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.Active {
		return nil, apperr.BadRequest("paid_sub_inactive")
	}
	if s.payments == nil {
		return nil, apperr.BadRequest("payment_gateway_unknown")
	}
	gw, err := s.payments.Get(gateway)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.MemberSubscriptions(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !sub.Repeatable {
		for _, l := range logs {
			if l.SubscriptionID == sub.ID && l.Status == models.SubscriptionActive {
				return nil, apperr.Conflict("paid_sub_already")
			}
		}
	}
	entry := &models.SubscriptionLog{
		SubscriptionID:  sub.ID,
		MemberID:        memberID,
		Status:          models.SubscriptionInactive,
		PaymentsPending: 1,
		Gateway:         gw.Name(),
	}
	if _, err := s.store.CreateSubscriptionLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("create subscription entry: %w", err)
	}
	req, err := gw.Start(*sub, *entry)
	if err != nil {
		return nil, fmt.Errorf("start payment: %w", err)
	}
	return &req, nil
}

// CancelSubscription ends an active entry of the member.
func (s *Service) CancelSubscription(ctx context.Context, v *permissions.Viewer, memberID, sublogID int64) error {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return err
	}
	if err := requireOwnOr(v, memberID, permissions.AdminForum); err != nil {
		return err
	}
	l, err := s.store.GetSubscriptionLog(ctx, sublogID)
	if err != nil {
		return err
	}
	if l == nil || l.MemberID != memberID || l.Status != models.SubscriptionActive {
		return apperr.BadRequest("paid_sub_not_active")
	}
	if err := s.store.EndSubscription(ctx, l.ID); err != nil {
		return fmt.Errorf("end subscription: %w", err)
	}
	return s.logAction(ctx, models.LogProfile, v, memberID, "subscription_cancel", map[string]any{"sublog": l.ID})
}

// activate starts a pending entry for its plan's length.
func (s *Service) activate(ctx context.Context, l *models.SubscriptionLog, ref string) error {
	sub, err := s.store.GetSubscription(ctx, l.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperr.NotFound("no_such_subscription")
	}
	start := s.now()
	var end int64
	if sub.LengthDays > 0 {
		end = start + int64(sub.LengthDays)*day
	}
	if err := s.store.ActivateSubscription(ctx, l.ID, start, end, ref); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	logger.Info("subscription activated",
		slog.Int64("sublog", l.ID),
		slog.Int64("member", l.MemberID),
		slog.String("gateway", l.Gateway))
	return nil
}

// pendingEntry returns a sublog awaiting payment.
func (s *Service) pendingEntry(ctx context.Context, sublogID int64) (*models.SubscriptionLog, error) {
	l, err := s.store.GetSubscriptionLog(ctx, sublogID)
	if err != nil {
		return nil, err
	}
	if l == nil || !pending(*l) {
		return nil, apperr.BadRequest("paid_sub_not_pending")
	}
	return l, nil
}

// PaymentCallback verifies a provider notification and activates the entry.
func (s *Service) PaymentCallback(ctx context.Context, gateway string, body []byte) error {
	if s.payments == nil {
		return apperr.BadRequest("payment_gateway_unknown")
	}
	gw, err := s.payments.Get(gateway)
	if err != nil {
		return err
	}
	conf, err := gw.Verify(body)
	if err != nil {
		return err
	}
	l, err := s.pendingEntry(ctx, conf.SublogID)
	if err != nil {
		return err
	}
	if l.Gateway != gw.Name() {
		return apperr.BadRequest("payment_invalid")
	}
	sub, err := s.store.GetSubscription(ctx, l.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperr.NotFound("no_such_subscription")
	}
	if conf.AmountCents != sub.CostCents {
		logger.Warn("payment amount mismatch",
			slog.Int64("sublog", l.ID),
			slog.Int64("paid", conf.AmountCents),
			slog.Int64("cost", sub.CostCents))
		return apperr.BadRequest("payment_amount_mismatch")
	}
	return s.activate(ctx, l, conf.VendorRef)
}

// ConfirmPayment lets an administrator activate a pending entry.
func (s *Service) ConfirmPayment(ctx context.Context, v *permissions.Viewer, sublogID int64) error {
	if err := v.Require(permissions.AdminForum); err != nil {
		return err
	}
	l, err := s.pendingEntry(ctx, sublogID)
	if err != nil {
		return err
	}
	if err := s.activate(ctx, l, "manual:"+strconv.FormatInt(v.MemberID, 10)); err != nil {
		return err
	}
	return s.logAction(ctx, models.LogAdmin, v, l.MemberID, "subscription_confirm", map[string]any{"sublog": l.ID})
}

// ExpireSubscriptions handles the subscriptions.expire task: expired entries
// are ended and members whose entry ends soon are reminded once.
func (s *Service) ExpireSubscriptions(ctx context.Context, _ *tasks.Task) error {
	now := s.now()
	expired, err := s.store.ExpiredSubscriptions(ctx, now)
	if err != nil {
		return fmt.Errorf("list expired subscriptions: %w", err)
	}
	for _, l := range expired {
		if err := s.store.EndSubscription(ctx, l.ID); err != nil {
			return fmt.Errorf("end subscription %d: %w", l.ID, err)
		}
		logger.Info("subscription expired", slog.Int64("sublog", l.ID), slog.Int64("member", l.MemberID))
	}

	values, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	days := values.Int("paidsubs_reminder_days")
	if days <= 0 {
		return nil
	}
	expiring, err := s.store.ExpiringSubscriptions(ctx, now+int64(days)*day)
	if err != nil {
		return fmt.Errorf("list expiring subscriptions: %w", err)
	}
	for _, l := range expiring {
		sub, err := s.store.GetSubscription(ctx, l.SubscriptionID)
		if err != nil {
			return err
		}
		name := ""
		if sub != nil {
			name = sub.Name
		}
		s.notify(ctx, notify.Event{
			Pref:        notify.PrefSubscriptionEnding,
			Recipients:  []int64{l.MemberID},
			ContentType: "paidsubs",
			ContentID:   l.ID,
			Action:      notify.PrefSubscriptionEnding,
			Extra:       map[string]string{"subscription": name, "end_time": strconv.FormatInt(l.End, 10)},
		})
		if err := s.store.MarkReminderSent(ctx, l.ID); err != nil {
			return fmt.Errorf("mark reminder %d: %w", l.ID, err)
		}
	}
	return nil
}
