package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Data keys understood by the templates.
const (
	KeyCandidateName = "candidate_name"
	KeyJobTitle      = "job_title"
	KeyRoundNumber   = "round_number"
	KeyRoundName     = "round_name"
	KeyScheduledDate = "scheduled_date"
	KeyRank          = "rank"
)

type message struct {
	subject string
	body    *template.Template
}

var messages = map[Kind]message{
	KindAssessmentLink: {
		subject: "Your next round: {{.round_name}}",
		body: template.Must(template.New("assessment_link").Option("missingkey=zero").Parse(
			`Hi {{.candidate_name}},

Round {{.round_number}} ({{.round_name}}) for {{.job_title}} is now open.{{if .scheduled_date}}
It was scheduled for {{.scheduled_date}}.{{end}}
`)),
	},
	KindShortlisted: {
		subject: "You have been shortlisted for {{.job_title}}",
		body: template.Must(template.New("shortlisted").Option("missingkey=zero").Parse(
			`Hi {{.candidate_name}},

You have been shortlisted for {{.job_title}}{{if .rank}} at position {{.rank}}{{end}}.
We will send you the details of the first round shortly.
`)),
	},
	KindRejected: {
		subject: "Your application for {{.job_title}}",
		body: template.Must(template.New("rejected").Option("missingkey=zero").Parse(
			`Hi {{.candidate_name}},

Thank you for your interest in {{.job_title}}. We will not be moving forward with your application.
`)),
	},
}

// render returns the subject and plain text body for a kind.
func render(kind Kind, data map[string]any) (string, string, error) {
	m, ok := messages[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}
	subject, err := template.New("subject").Option("missingkey=zero").Parse(m.subject)
	if err != nil {
		return "", "", err
	}
	var sb, bb bytes.Buffer
	if err := subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := m.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}
