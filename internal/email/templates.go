package email

import (
	"fmt"
	"html/template"
	"strings"
)

const layout = `
{{define "layout"}}
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: {{template "color" .}}; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .card { background: white; border-radius: 8px; padding: 16px 20px; margin: 16px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .btn { display: inline-block; background: #4f46e5; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header"><h2>{{template "title" .}}</h2></div>
    <div class="content">{{template "body" .}}</div>
    <div class="footer">ORA Admin Console</div>
</div>
</body>
</html>
{{end}}`

// page parses one email body into the shared layout.
func page(name, color, title, body string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	template.Must(t.Parse(`{{define "color"}}` + color + `{{end}}`))
	template.Must(t.Parse(`{{define "title"}}` + title + `{{end}}`))
	template.Must(t.Parse(`{{define "body"}}` + body + `{{end}}`))
	return t.Lookup("layout")
}

// loadTemplates loads all email templates
func (s *Service) loadTemplates() {
	s.templates["ownership_transferred"] = page("ownership_transferred", "#4f46e5",
		"Ownership of {{.OrganizationName}} has changed", `
        <p>Hi {{.RecipientName}},</p>
        {{if .IsNewOwner}}
        <p>You are now the <strong>Owner</strong> of <strong>{{.OrganizationName}}</strong>.</p>
        {{else}}
        <p>Ownership of <strong>{{.OrganizationName}}</strong> was transferred to <strong>{{.NewOwnerName}}</strong>. Your role is now <strong>Admin</strong>.</p>
        {{end}}
        <div class="card">
            <p><strong>Previous owner:</strong> {{.PreviousOwnerName}}</p>
            <p><strong>New owner:</strong> {{.NewOwnerName}} ({{.NewOwnerEmail}})</p>
        </div>
        <a href="{{.ConsoleURL}}" class="btn">Open organization</a>`)

	s.templates["organization_deactivated"] = page("organization_deactivated", "#ef4444",
		"{{.OrganizationName}} has been deactivated", `
        <p>Hi {{.OwnerName}},</p>
        <p>Your organization <strong>{{.OrganizationName}}</strong> was deactivated on {{.Date}}. Members can no longer sign in.</p>
        <div class="card"><p><strong>Reason:</strong> {{.Reason}}</p></div>
        <p>Contact support if you believe this is a mistake.</p>`)

	s.templates["organization_activated"] = page("organization_activated", "#10b981",
		"{{.OrganizationName}} is active again", `
        <p>Hi {{.OwnerName}},</p>
        <p>Your organization <strong>{{.OrganizationName}}</strong> has been re-activated. Members can sign in again.</p>
        <a href="{{.ConsoleURL}}" class="btn">Open organization</a>`)

	s.templates["subscription_extended"] = page("subscription_extended", "#10b981",
		"Subscription extended", `
        <p>Hi {{.OwnerName}},</p>
        <p>The subscription of <strong>{{.OrganizationName}}</strong> was extended by {{.Duration}}.</p>
        <div class="card">
            <p><strong>Previous end date:</strong> {{.PreviousEndDate}}</p>
            <p><strong>New end date:</strong> {{.NewEndDate}}</p>
            {{if .Amount}}<p><strong>Amount:</strong> {{.Amount}}</p>{{end}}
        </div>`)

	s.templates["subscription_expiring"] = page("subscription_expiring", "#f59e0b",
		"Your subscription expires soon", `
        <p>Hi {{.OwnerName}},</p>
        <p>The subscription of <strong>{{.OrganizationName}}</strong> expires in
        <strong>{{.DaysRemaining}} day{{if ne .DaysRemaining 1}}s{{end}}</strong>, on {{.ExpiryDate}}.</p>
        <p>Renew now to avoid interruption for your team.</p>
        <a href="{{.ConsoleURL}}" class="btn">Renew subscription</a>`)

	s.templates["member_added"] = page("member_added", "#4f46e5",
		"Welcome to {{.OrganizationName}}", `
        <p>Hi {{.MemberName}},</p>
        <p>You were added to <strong>{{.OrganizationName}}</strong> as <strong>{{.Role}}</strong>.</p>
        <p>Verify your email address to get started.</p>`)
}

// ============================================
// Convenience Methods
// ============================================

// OwnershipTransferredData is sent to both the previous and the new owner.
type OwnershipTransferredData struct {
	RecipientName     string
	IsNewOwner        bool
	OrganizationName  string
	PreviousOwnerName string
	NewOwnerName      string
	NewOwnerEmail     string
	ConsoleURL        string
}

func (s *Service) SendOwnershipTransferred(to string, data OwnershipTransferredData) error {
	data.ConsoleURL = s.consoleURL(data.ConsoleURL)
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] Ownership of %s transferred", data.OrganizationName),
		"ownership_transferred",
		data,
	)
}

type OrganizationDeactivatedData struct {
	OwnerName        string
	OrganizationName string
	Reason           string
	Date             string
}

func (s *Service) SendOrganizationDeactivated(to string, data OrganizationDeactivatedData) error {
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] %s has been deactivated", data.OrganizationName),
		"organization_deactivated",
		data,
	)
}

type OrganizationActivatedData struct {
	OwnerName        string
	OrganizationName string
	ConsoleURL       string
}

func (s *Service) SendOrganizationActivated(to string, data OrganizationActivatedData) error {
	data.ConsoleURL = s.consoleURL(data.ConsoleURL)
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] %s is active again", data.OrganizationName),
		"organization_activated",
		data,
	)
}

type SubscriptionExtendedData struct {
	OwnerName        string
	OrganizationName string
	Duration         string
	PreviousEndDate  string
	NewEndDate       string
	Amount           string
}

func (s *Service) SendSubscriptionExtended(to string, data SubscriptionExtendedData) error {
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] Subscription extended until %s", data.NewEndDate),
		"subscription_extended",
		data,
	)
}

// SubscriptionExpiringData holds data for the renewal reminder.
type SubscriptionExpiringData struct {
	OwnerName        string
	OrganizationName string
	DaysRemaining    int
	ExpiryDate       string
	ConsoleURL       string
}

func (s *Service) SendSubscriptionExpiring(to string, data SubscriptionExpiringData) error {
	data.ConsoleURL = s.consoleURL(data.ConsoleURL)
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] %s subscription expires in %d days", data.OrganizationName, data.DaysRemaining),
		"subscription_expiring",
		data,
	)
}

type MemberAddedData struct {
	MemberName       string
	OrganizationName string
	Role             string
}

func (s *Service) SendMemberAdded(to string, data MemberAddedData) error {
	return s.dispatch(
		[]string{to},
		fmt.Sprintf("[ORA] You were added to %s", data.OrganizationName),
		"member_added",
		data,
	)
}

// consoleURL resolves a console path against the frontend URL. Absolute
// URLs pass through.
func (s *Service) consoleURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(s.config.FrontendURL, "/") + path
}
