/*
sendgrid.go - SendGrid delivery

PURPOSE:
  Sends rendered invoice documents through the SendGrid v3 mail API, with
  the HTML document attached and the plain-text summary in the body.
*/
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/cadenza/academy-billing/billing"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendgridSender struct {
	key  string
	from *sgmail.Email
}

var _ Sender = (*SendgridSender)(nil)

func NewSendgridSender(key, fromName, fromEmail string) *SendgridSender {
	return &SendgridSender{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
}

func (s *SendgridSender) Send(ctx context.Context, doc Document, recipient *billing.Account) error {
	p := sgmail.NewPersonalization()
	p.Subject = doc.Subject
	p.AddTos(sgmail.NewEmail(recipient.FullName(), recipient.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", doc.Text))
	m.AddAttachment(&sgmail.Attachment{
		Content:     base64.StdEncoding.EncodeToString(doc.HTML),
		Type:        "text/html",
		Filename:    doc.Filename,
		Disposition: "attachment",
	})

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
