package email

import (
	"bytes"
	"html/template"
)

const appName = "MyBeatFi"

// Notice identifies a negotiation notification.
type Notice string

const (
	NoticeNewProposal      Notice = "new_proposal"
	NoticeMessage          Notice = "new_message"
	NoticeCounterOffer     Notice = "counter_offer"
	NoticeAccepted         Notice = "accepted"
	NoticeDeclined         Notice = "declined"
	NoticePaymentRequested Notice = "payment_requested"
)

var notices = map[Notice]struct{ subject string }{
	NoticeNewProposal:      {subject: "New sync proposal for %s"},
	NoticeMessage:          {subject: "New message about %s"},
	NoticeCounterOffer:     {subject: "Counter offer received for %s"},
	NoticeAccepted:         {subject: "Sync proposal for %s accepted"},
	NoticeDeclined:         {subject: "Sync proposal for %s declined"},
	NoticePaymentRequested: {subject: "Payment requested for %s"},
}

// Message is the data every template renders from.
type Message struct {
	AppName       string
	RecipientName string
	ActorName     string
	TrackTitle    string
	ProjectType   string
	Amount        string
	PaymentTerms  string
	Summary       string
	ProposalID    string
	ActionURL     string
}

var templates = template.Must(template.New("email").Parse(layoutTemplate + bodyTemplates))

func render(name string, data Message) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layoutTemplate = `{{define "header"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #6b21a8; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #6b21a8; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .terms { background: #f5f3ff; padding: 12px; border-radius: 4px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.RecipientName}},</p>
{{end}}
{{define "footer"}}
    <p><a href="{{.ActionURL}}" class="button">{{template "cta" .}}</a></p>
    <div class="footer"><p>You are receiving this because you are part of a sync licensing deal on {{.AppName}}.</p></div>
</body>
</html>{{end}}
{{define "terms"}}{{if or .Amount .PaymentTerms}}
    <div class="terms">{{if .Amount}}<strong>Amount:</strong> {{.Amount}}<br>{{end}}{{if .PaymentTerms}}<strong>Payment terms:</strong> {{.PaymentTerms}}{{end}}</div>
{{end}}{{end}}
{{define "cta"}}View proposal{{end}}
`

const bodyTemplates = `
{{define "verification"}}{{template "header" .}}
    <p>Thank you for signing up. Please verify your email address to activate your account.</p>
    <p><a href="{{.ActionURL}}" class="button">Verify Email Address</a></p>
    <p>This verification link will expire in 24 hours.</p>
</body>
</html>{{end}}

{{define "password_reset"}}{{template "header" .}}
    <p>We received a request to reset your password.</p>
    <p><a href="{{.ActionURL}}" class="button">Reset Password</a></p>
    <p><strong>Important:</strong> This reset link will expire in 1 hour.</p>
</body>
</html>{{end}}

{{define "new_proposal"}}{{template "header" .}}
    <p>{{.ActorName}} sent a sync proposal for <strong>{{.TrackTitle}}</strong>{{if .ProjectType}} ({{.ProjectType}}){{end}}.</p>
{{template "terms" .}}{{template "footer" .}}{{end}}

{{define "new_message"}}{{template "header" .}}
    <p>{{.ActorName}} replied in the negotiation for <strong>{{.TrackTitle}}</strong>.</p>
    {{if .Summary}}<blockquote>{{.Summary}}</blockquote>{{end}}
{{template "footer" .}}{{end}}

{{define "counter_offer"}}{{template "header" .}}
    <p>{{.ActorName}} made a counter offer for <strong>{{.TrackTitle}}</strong>. Review it and accept or decline each term.</p>
{{template "terms" .}}{{template "footer" .}}{{end}}

{{define "accepted"}}{{template "header" .}}
    <p>{{.ActorName}} accepted the terms for <strong>{{.TrackTitle}}</strong>.</p>
    {{if .Summary}}<p>{{.Summary}}</p>{{end}}
{{template "terms" .}}{{template "footer" .}}{{end}}

{{define "declined"}}{{template "header" .}}
    <p>{{.ActorName}} declined the sync proposal for <strong>{{.TrackTitle}}</strong>. The negotiation is closed.</p>
{{template "footer" .}}{{end}}

{{define "payment_requested"}}{{template "header" .}}
    <p>Payment for <strong>{{.TrackTitle}}</strong> has been requested.</p>
{{template "terms" .}}{{template "footer" .}}{{end}}
`
