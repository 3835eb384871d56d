package emailsvc

import (
	"fmt"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

// Outbox records the messages sent by the console services.
type Outbox struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

func (o *Outbox) add(msg core.EmailMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
}

// Messages returns a copy of the sent messages.
func (o *Outbox) Messages() []core.EmailMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]core.EmailMessage(nil), o.messages...)
}

func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = nil
}

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	frontendBaseURL  string
	disableOutput    bool
	outbox           *Outbox
	logger           core.Logger
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService logs emails instead of sending them.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromAddress(),
		subjPrefix:       "[" + conf.AppName + "] ",
		frontendBaseURL:  conf.FrontendBaseURL,
		outbox:           new(Outbox),
		logger:           logger,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		svc.logger.Error(errors.Wrap(err, "rendering email").Error(), err)
		return
	}
	if msg.HasRecipients() && msg.HasContent() {
		svc.send(*msg)
		svc.outbox.add(*msg)
	}
}

func (svc consoleService) send(msg core.EmailMessage) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", svc.joinAddresses(msg.To))

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.TextContent},
		{"text/html; charset=utf-8", msg.HTMLContent},
	}
	for _, part := range parts {
		if part.content == "" {
			continue
		}
		w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			svc.logger.Error("creating "+part.contentType+" part", err)
			return
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", part.content)
	}
	_ = altW.Close()

	if !svc.disableOutput {
		svc.logger.Info(body.String())
	}
}

func (svc consoleService) joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock sends synchronously and silently; sent messages are kept in Outbox.
type ConsoleServiceMock struct {
	consoleService
	Outbox *Outbox
}

func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleServiceMock {
	outbox := new(Outbox)
	return &ConsoleServiceMock{
		consoleService: consoleService{
			defaultFromEmail: conf.DefaultFromAddress(),
			subjPrefix:       "[" + conf.AppName + "] ",
			frontendBaseURL:  conf.FrontendBaseURL,
			disableOutput:    true,
			outbox:           outbox,
			logger:           logger,
		},
		Outbox: outbox,
	}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}
