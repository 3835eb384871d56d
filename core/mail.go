package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"log"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/abiboard/fs"
)

const emailTemplatesDir = "templates/email"

var (
	templates map[string]*emailTemplate // by name, without ext
	tmplInit  sync.Once
)

// emailTemplate is the text and HTML variant of one email; either may be missing.
type emailTemplate struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render renders the text and HTML contents of the message.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	ParseEmailTemplates(nil) // no-op once parsed
	tmpl, ok := templates[m.TemplateName]
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	var buff bytes.Buffer
	if tmpl.text != nil {
		if err := tmpl.text.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses the embedded email templates once.
// Parsing errors are reported to logger (or the std logger if nil).
func ParseEmailTemplates(logger Logger) {
	tmplInit.Do(func() { parseTemplates(logger) })
}

func parseTemplates(logger Logger) {
	logErr := func(err error) {
		msg := fmt.Sprintf("core.parseTemplates: %v", err)
		if logger != nil {
			logger.Error(msg, err)
		} else {
			log.Print(msg)
		}
	}

	templates = make(map[string]*emailTemplate)

	fps, err := fs.Glob(appfs.FS, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		logErr(err)
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue // layouts
		}
		name := strings.TrimSuffix(fname, ext)
		tmpl, ok := templates[name]
		if !ok {
			tmpl = new(emailTemplate)
		}

		switch ext {
		case ".txt":
			t, err := texttmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.txt"), fp)
			if err != nil {
				logErr(err)
				continue
			}
			tmpl.text = t.Option("missingkey=error")
		case ".gohtml":
			t, err := htmltmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.gohtml"), fp)
			if err != nil {
				logErr(err)
				continue
			}
			tmpl.html = t.Option("missingkey=error")
		default:
			continue
		}
		templates[name] = tmpl
	}
}
