package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/taxpilot/taxpilot/internal/jobs"
)

// Notification is a rendered client-facing status message.
type Notification struct {
	ClientID string
	FilingID int64
	Subject  string
	Body     string
}

// Notifier delivers notifications to clients.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, msg Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "client notification",
		slog.String("client_id", msg.ClientID),
		slog.Int64("filing_id", msg.FilingID),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body))
	return nil
}

// FilingNotifyJob renders and delivers filing status notifications.
type FilingNotifyJob struct {
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewFilingNotifyJob wires dependencies for the notification handler.
func NewFilingNotifyJob(notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *FilingNotifyJob {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &FilingNotifyJob{
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// Handle processes TaskFilingStatusNotify tasks.
func (j *FilingNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("filing notify: handler not configured")
	}
	var payload FilingStatusPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("filing notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.FilingID == 0 || payload.Status == "" {
		return fmt.Errorf("filing notify: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskFilingStatusNotify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	n := j.Render(payload)
	if err := j.Notifier.Notify(ctx, n); err != nil {
		resultErr = err
		j.logger().Error("deliver notification", slog.Int64("filing_id", payload.FilingID), slog.String("status", payload.Status), slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddNotification(payload.Status)
	return resultErr
}

// Render builds the client-facing message for payload.
func (j *FilingNotifyJob) Render(p FilingStatusPayload) Notification {
	printer := message.NewPrinter(language.AmericanEnglish)
	label := cases.Title(language.AmericanEnglish).String(strings.ReplaceAll(p.Status, "_", " "))
	var body strings.Builder
	fmt.Fprintf(&body, "Your %d tax return is now %s.", p.TaxYear, label)
	if amount, ok := money(printer, p.ActualRefund); ok {
		body.WriteString(" Refund issued: " + amount + ".")
	} else if amount, ok := money(printer, p.EstimatedRefund); ok {
		body.WriteString(" Estimated refund: " + amount + ".")
	}
	if p.Note != "" {
		body.WriteString(" Note from your preparer: ")
		body.WriteString(p.Note)
	}
	return Notification{
		ClientID: p.ClientID,
		FilingID: p.FilingID,
		Subject:  fmt.Sprintf("%d tax return: %s", p.TaxYear, label),
		Body:     body.String(),
	}
}

// money formats raw as US dollars rounded to cents. The amount stays a decimal
// throughout; the printer only groups the whole-dollar digits.
func money(printer *message.Printer, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", false
	}
	abs := d.Round(2).Abs()
	fixed := abs.StringFixed(2)
	cents := fixed[strings.IndexByte(fixed, '.'):]
	sign := ""
	if d.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + "$" + printer.Sprintf("%d", abs.IntPart()) + cents, true
}

func (j *FilingNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFilingStatusNotify))
	}
	return slog.Default().With(slog.String("job", TaskFilingStatusNotify))
}

func (j *FilingNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
