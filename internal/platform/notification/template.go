package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"
	texttemplate "text/template"
)

// Template IDs rendered by the appointment workflow.
const (
	TemplateNewBooking    = "new-booking"
	TemplateStatusChanged = "status-changed"
)

// Template is a subject line plus an HTML body. Both are Go templates; the
// body is rendered with html/template so user-supplied fields are escaped.
type Template struct {
	ID      string
	Subject string
	Body    string
}

type compiled struct {
	subject *texttemplate.Template
	body    *template.Template
}

// TemplateEngine holds parsed templates keyed by ID.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]compiled
}

// NewTemplateEngine returns an engine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]compiled)}
	for _, t := range builtIn {
		if err := e.Register(t); err != nil {
			panic(fmt.Sprintf("built-in template %s: %v", t.ID, err))
		}
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TemplateNewBooking,
		Subject: "New Appointment Request",
		Body: `<div>
  <h3>Hello {{.RecipientName}}</h3>
  <h2>New Appointment Request</h2>
  <p>{{.Date}}</p>
  <p>{{.Time}}</p>
  <p>{{.Notes}}</p>
  <p>Please log in to your dashboard to review {{.PatientName}}'s appointment.</p>
</div>`,
	},
	{
		ID:      TemplateStatusChanged,
		Subject: "Appointment {{.Status}}",
		Body: `<div>
  <h3>Hello {{.RecipientName}}</h3>
  <h3>Appointment Update</h3>
  <p>Your appointment has been <strong>{{.Status}}</strong>.</p>
</div>`,
	},
}

// Register parses and stores t, replacing any template with the same ID.
func (e *TemplateEngine) Register(t Template) error {
	subj, err := texttemplate.New(t.ID + ".subject").Option("missingkey=error").Parse(t.Subject)
	if err != nil {
		return fmt.Errorf("parse subject: %w", err)
	}
	body, err := template.New(t.ID + ".body").Option("missingkey=error").Parse(t.Body)
	if err != nil {
		return fmt.Errorf("parse body: %w", err)
	}

	e.mu.Lock()
	e.templates[t.ID] = compiled{subject: subj, body: body}
	e.mu.Unlock()
	return nil
}

// Render executes the template with data and addresses the result to to.
func (e *TemplateEngine) Render(id string, to string, data any) (Message, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("template %q not found", id)
	}

	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", id, err)
	}
	return Message{RecipientEmail: to, Subject: subj.String(), BodyHTML: body.String()}, nil
}
