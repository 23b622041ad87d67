// Package notify delivers escalation notifications by e-mail. It is an
// optional collaborator: the rule engine works identically without it.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/talentops/pipetrack/internal/urgency"
)

type EmailNotifier struct {
	apiKey      string
	fromName    string
	fromAddress string
	toAddress   string
}

// NewEmailNotifier returns nil when no API key or recipient is set;
// callers should skip wiring the notifier in that case.
func NewEmailNotifier(apiKey, fromName, fromAddress, toAddress string) *EmailNotifier {
	if apiKey == "" || toAddress == "" {
		return nil
	}
	return &EmailNotifier{
		apiKey:      apiKey,
		fromName:    fromName,
		fromAddress: fromAddress,
		toAddress:   toAddress,
	}
}

// NotifyEscalation sends a short e-mail about a newly created
// escalation task. Delivery failures are logged, never propagated; an
// evaluation pass must not fail because mail did.
func (n *EmailNotifier) NotifyEscalation(_ context.Context, t *urgency.Task) {
	subject := fmt.Sprintf("SLA breach: role %s needs attention", t.RoleID)
	body := fmt.Sprintf("%s\n\nWorkspace: %s\nRole: %s\nDue: %s\n", t.Title, t.WorkspaceID, t.RoleID, t.DueAt.Format("2006-01-02 15:04 MST"))

	from := mail.NewEmail(n.fromName, n.fromAddress)
	to := mail.NewEmail("", n.toAddress)
	email := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(n.apiKey)

	response, err := client.Send(email)
	if err != nil {
		log.Printf("failed to send escalation email for role %s: %v", t.RoleID, err)
		return
	}
	if response.StatusCode >= 400 {
		log.Printf("sendgrid error for role %s: status %d", t.RoleID, response.StatusCode)
		return
	}

	log.Printf("Escalation email sent for role %s (status: %d)", t.RoleID, response.StatusCode)
}
