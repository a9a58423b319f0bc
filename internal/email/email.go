package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ReplyNotification tells a project owner that a visitor answered in a thread
type ReplyNotification struct {
	OwnerEmail   string
	ProjectName  string
	ThreadID     string
	ThreadBody   string
	SenderEmail  string
	ReplyBody    string
	DashboardURL string
}

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService handles sending emails via SendGrid
type EmailService struct {
	apiKey    string
	fromEmail string
	client    mailClient
}

// NewEmailService creates a new email service instance
func NewEmailService(apiKey, fromEmail string) *EmailService {
	if fromEmail == "" {
		fromEmail = "noreply@feedbackhub.dev"
	}
	return &EmailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		client:    sendgrid.NewSendClient(apiKey),
	}
}

// SendReplyNotification emails the project owner about a new visitor reply
func (es *EmailService) SendReplyNotification(ctx context.Context, n ReplyNotification) error {
	if es.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if n.OwnerEmail == "" {
		return fmt.Errorf("project has no owner email")
	}

	from := mail.NewEmail("Feedback Hub", es.fromEmail)
	to := mail.NewEmail("Project Owner", n.OwnerEmail)
	subject := fmt.Sprintf("New reply on %s feedback from %s", n.ProjectName, n.SenderEmail)

	plain, html := renderReplyNotification(n)
	message := mail.NewSingleEmail(from, subject, to, plain, html)
	message.SetReplyTo(mail.NewEmail("", n.SenderEmail))

	response, err := es.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

func renderReplyNotification(n ReplyNotification) (string, string) {
	link := strings.TrimRight(n.DashboardURL, "/") + "/dashboard/threads/" + n.ThreadID

	plain := fmt.Sprintf(`%s replied to a feedback thread on %s.

Original feedback:
%s

Reply:
%s

Open the conversation: %s`, n.SenderEmail, n.ProjectName, n.ThreadBody, n.ReplyBody, link)

	html := fmt.Sprintf(`<p><strong>%s</strong> replied to a feedback thread on <strong>%s</strong>.</p>
<p>Original feedback:</p><blockquote>%s</blockquote>
<p>Reply:</p><blockquote>%s</blockquote>
<p><a href="%s">Open the conversation</a></p>`,
		escape(n.SenderEmail), escape(n.ProjectName), escape(n.ThreadBody), escape(n.ReplyBody), escape(link))

	return plain, html
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}
