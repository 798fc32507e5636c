package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"gopkg.in/gomail.v2"
)

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Directory resolves a recipient to an email address. An empty address means
// the recipient has none.
type Directory interface {
	EmailFor(ctx context.Context, kind domain.RecipientKind, id string) (string, error)
}

type EmailNotifier struct {
	sender    Sender
	from      string
	directory Directory
}

func NewEmailNotifier(sender Sender, from string, directory Directory) *EmailNotifier {
	return &EmailNotifier{sender: sender, from: from, directory: directory}
}

// NewSMTPSender builds a gomail dialer for host:port.
func NewSMTPSender(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, n domain.Notification) error {
	to, err := e.directory.EmailFor(ctx, n.RecipientKind, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve %s %s: %w", n.RecipientKind, n.RecipientID, err)
	}
	if to == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", n.Message)
	return e.sender.DialAndSend(m)
}

// StoreDirectory looks addresses up in the record store: employees by id,
// tenant admins through the tenant's admin email.
type StoreDirectory struct {
	Employees domain.EmployeeRepository
	Tenants   domain.TenantRepository
}

func (d StoreDirectory) EmailFor(ctx context.Context, kind domain.RecipientKind, id string) (string, error) {
	switch kind {
	case domain.RecipientEmployee:
		emp, err := d.Employees.GetEmployee(ctx, id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return emp.Email, nil
	case domain.RecipientAdmin:
		tenant, err := d.Tenants.GetTenant(ctx, id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return tenant.AdminEmail, nil
	}
	return "", fmt.Errorf("unknown recipient kind %q", kind)
}
