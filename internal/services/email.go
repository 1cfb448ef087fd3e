package services

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"certtrack-backend/internal/rollup"
	"certtrack-backend/internal/status"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
	log         *zap.Logger
}

func NewEmailService(host, port, user, pass, from, frontendURL string, log *zap.Logger) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
		log:         log,
	}
}

// SendAtRiskReminder lists the learner's overdue and due-soon courses.
func (s *EmailService) SendAtRiskReminder(to, name string, courses []rollup.FlaggedCourse) error {
	subject := "Certification reminder: courses need your attention"
	return s.sendHTML(to, subject, atRiskReminderBody(name, courses, s.frontendURL))
}

func atRiskReminderBody(name string, courses []rollup.FlaggedCourse, frontendURL string) string {
	var rows strings.Builder
	for _, c := range courses {
		color := "#d97706"
		if c.Status.Category == status.Overdue {
			color = "#dc2626"
		}
		fmt.Fprintf(&rows,
			`<tr><td style="padding: 8px 0; color: #1e293b;">%s</td><td style="padding: 8px 0; color: #64748b;">%s</td><td style="padding: 8px 0; color: %s; font-weight: 600;">%s</td></tr>`,
			html.EscapeString(c.Title), html.EscapeString(c.TrackName), color, html.EscapeString(c.Status.Text),
		)
	}

	dashboardURL := frontendURL + "/dashboard"
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 520px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #1e3a8a; padding: 24px 32px;">
      <h1 style="color: white; margin: 0; font-size: 22px; font-weight: 700;">Certification Tracker</h1>
    </div>
    <div style="padding: 32px;">
      <p style="color: #1e293b; font-size: 15px; margin: 0 0 16px;">Hi %s,</p>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">
        The following required courses are overdue or due soon:
      </p>
      <table style="width: 100%%; font-size: 14px; border-collapse: collapse;">%s</table>
      <a href="%s" style="display: inline-block; margin-top: 24px; background: #1e3a8a; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        Open my dashboard
      </a>
    </div>
  </div>
</body>
</html>`, html.EscapeString(name), rows.String(), dashboardURL)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		s.log.Info("dev email", zap.String("to", to), zap.String("subject", subject), zap.Int("body_bytes", len(htmlBody)))
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.log.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
