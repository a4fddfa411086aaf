// Package content resolves subject and body for each reminder milestone.
package content

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

// TemplateData carries the tracker fields templates may reference.
type TemplateData struct {
	CustomerName string
	ProductName  string
	ReviewURL    string
	ProductURL   string
}

// Content is a rendered reminder email.
type Content struct {
	Subject  string
	HTMLBody string
}

// Template is one offset's subject line and body template source.
type Template struct {
	Subject string
	Body    string
}

// defaultTemplates cover the four milestone offsets out of the box.
// Overrides supplied to NewResolver replace them per offset.
var defaultTemplates = map[int]Template{
	3: {
		Subject: "How are you liking {{.ProductName}}?",
		Body: `<p>Hi {{.CustomerName}},</p>
<p>It's been a few days since you received your {{.ProductName}}. We hope you're enjoying it!</p>
<p>When you have a minute, we'd love to hear what you think: <a href="{{.ReviewURL}}">share a review</a>.</p>
<p>Questions about the product? See <a href="{{.ProductURL}}">the product page</a>.</p>`,
	},
	7: {
		Subject: "A week with {{.ProductName}} — what do you think?",
		Body: `<p>Hi {{.CustomerName}},</p>
<p>You've had your {{.ProductName}} for a week now. Your impressions would help other customers a lot.</p>
<p><a href="{{.ReviewURL}}">Leave a quick review</a> — it only takes a minute.</p>`,
	},
	14: {
		Subject: "Two weeks in: share your {{.ProductName}} experience",
		Body: `<p>Hi {{.CustomerName}},</p>
<p>Two weeks with your {{.ProductName}} — by now you know it well.</p>
<p>If you haven't yet, please <a href="{{.ReviewURL}}">tell us how it's going</a>.</p>`,
	},
	30: {
		Subject: "Last chance to review your {{.ProductName}}",
		Body: `<p>Hi {{.CustomerName}},</p>
<p>It's been a month since your {{.ProductName}} arrived. This is our last reminder.</p>
<p>We'd still love your feedback: <a href="{{.ReviewURL}}">write a review</a>.</p>
<p>Thanks for being a customer!</p>`,
	},
}

// Resolver renders per-offset reminder content. Bodies go through
// html/template for escaping; subjects are plain text.
type Resolver struct {
	subjects map[int]*texttemplate.Template
	bodies   map[int]*template.Template
}

// NewResolver parses the built-in templates plus any per-offset
// overrides. An override replaces both subject and body for its offset.
func NewResolver(overrides map[int]Template) (*Resolver, error) {
	r := &Resolver{
		subjects: make(map[int]*texttemplate.Template),
		bodies:   make(map[int]*template.Template),
	}

	for offset, tmpl := range defaultTemplates {
		if override, ok := overrides[offset]; ok {
			tmpl = override
		}
		subject, err := texttemplate.New(fmt.Sprintf("subject-%d", offset)).Parse(tmpl.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject template for day %d: %w", offset, err)
		}
		body, err := template.New(fmt.Sprintf("body-%d", offset)).Parse(tmpl.Body)
		if err != nil {
			return nil, fmt.Errorf("parse body template for day %d: %w", offset, err)
		}
		r.subjects[offset] = subject
		r.bodies[offset] = body
	}

	return r, nil
}

// Resolve renders the subject and body for one milestone offset.
func (r *Resolver) Resolve(offsetDays int, data TemplateData) (*Content, error) {
	subject, ok := r.subjects[offsetDays]
	if !ok {
		return nil, fmt.Errorf("no template for day-%d milestone", offsetDays)
	}

	var subjectBuf, bodyBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, data); err != nil {
		return nil, fmt.Errorf("render subject for day %d: %w", offsetDays, err)
	}
	if err := r.bodies[offsetDays].Execute(&bodyBuf, data); err != nil {
		return nil, fmt.Errorf("render body for day %d: %w", offsetDays, err)
	}

	return &Content{
		Subject:  subjectBuf.String(),
		HTMLBody: bodyBuf.String(),
	}, nil
}
