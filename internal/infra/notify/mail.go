package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"ordersvc/internal/domain/model"
)

// MailSender は注文確認メールをSMTPで送る
type MailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailSender(host string, port int, username, password, from string) *MailSender {
	return &MailSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *MailSender) Send(ctx context.Context, snap model.OrderSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.UserEmail == "" {
		return fmt.Errorf("order %d: no recipient", snap.OrderID)
	}
	if err := s.dialer.DialAndSend(s.message(snap)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *MailSender) message(snap model.OrderSnapshot) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", snap.UserEmail)
	m.SetHeader("Subject", Subject(snap))
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from)))
	m.SetBody("text/plain", Body(snap))
	return m
}

func Subject(snap model.OrderSnapshot) string {
	return fmt.Sprintf("Order Confirmation - Order #%d", snap.OrderID)
}

// Body は本文（プレーンテキスト）
func Body(snap model.OrderSnapshot) string {
	name := snap.UserFirstName
	if name == "" {
		name = snap.UserEmail
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString("Thank you for your order! Here are the details:\n")
	fmt.Fprintf(&b, "Order ID: %d\n", snap.OrderID)
	fmt.Fprintf(&b, "Total Price: $%s\n", snap.TotalPrice.StringFixed(2))
	fmt.Fprintf(&b, "Discount: $%s\n", snap.Discount.StringFixed(2))
	b.WriteString("Items:\n")
	for _, it := range snap.Items {
		fmt.Fprintf(&b, "- %s (Qty: %d)\n", it.ProductName, it.Quantity)
	}
	b.WriteString("\nBest regards,\nThe Order Team")
	return b.String()
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return "localhost"
}

// LogSender はSMTP未設定のときに使う。送らずにログに出す
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, snap model.OrderSnapshot) error {
	s.log.InfoContext(ctx, "order confirmation",
		"order_id", snap.OrderID,
		"to", snap.UserEmail,
		"subject", Subject(snap),
		"items", len(snap.Items),
		"total_price", snap.TotalPrice.StringFixed(2),
		"discount", snap.Discount.StringFixed(2),
	)
	return nil
}
