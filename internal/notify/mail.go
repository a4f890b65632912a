package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, from string, m models.MailItem) error
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, from string, m models.MailItem) error {
	logger.Info("mail",
		slog.String("from", from),
		slog.String("to", m.Recipient),
		slog.String("subject", m.Subject),
	)
	return nil
}

// MailRepo is the mail queue storage.
type MailRepo interface {
	PendingMail(ctx context.Context, limit int) ([]models.MailItem, error)
	MarkMailSent(ctx context.Context, id int64) error
}

// Flusher sends queued mail.
type Flusher struct {
	repo   MailRepo
	mailer Mailer
	from   string
	batch  int
}

func NewFlusher(repo MailRepo, mailer Mailer, from string) *Flusher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Flusher{repo: repo, mailer: mailer, from: from, batch: 50}
}

// Handle is the mail.flush task handler. A failed send leaves the item
// queued and fails the task so it is retried.
func (f *Flusher) Handle(ctx context.Context, _ *tasks.Task) error {
	items, err := f.repo.PendingMail(ctx, f.batch)
	if err != nil {
		return fmt.Errorf("load mail queue: %w", err)
	}
	for _, m := range items {
		if err := f.mailer.Send(ctx, f.from, m); err != nil {
			return fmt.Errorf("send mail %d: %w", m.ID, err)
		}
		if err := f.repo.MarkMailSent(ctx, m.ID); err != nil {
			return fmt.Errorf("mark mail %d: %w", m.ID, err)
		}
	}
	return nil
}
