package tool

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"jarvis/internal/contacts"
	"jarvis/internal/domain"
)

// Gmail scopes requested by the email capabilities.
const (
	ScopeGmailRead = "https://www.googleapis.com/auth/gmail.readonly"
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
)

var phonePattern = Pattern{Re: contacts.AddressPattern, Hint: "a phone number with country code like +1234567890"}

func communicationCapabilities(d Deps) []domain.Descriptor {
	return []domain.Descriptor{
		{
			Name:        "send_whatsapp_message",
			Description: "Send a WhatsApp message to a saved contact or a phone number. The message is sent immediately and cannot be recalled.",
			Args: []domain.ArgSpec{
				{Name: "recipient", Kind: domain.KindString, Required: true, Description: "Contact name (e.g. mom) or phone number with country code"},
				{Name: "message", Kind: domain.KindString, Required: true, Description: "Text to send", Constraint: MaxLength(4096)},
			},
			Handler: d.sendWhatsApp,
		},
		{
			Name:        "add_contact",
			Description: "Add a new contact to the contact book.",
			Args: []domain.ArgSpec{
				{Name: "name", Kind: domain.KindString, Required: true, Description: "Contact name", Constraint: MaxLength(100)},
				{Name: "phone_no", Kind: domain.KindString, Required: true, Description: "Phone number including the country code",
					Constraint: phonePattern},
			},
			Handler: d.addContact,
		},
		{
			Name:        "send_email",
			Description: "Send an email from the user's Gmail account. Sent mail cannot be recalled.",
			Args: []domain.ArgSpec{
				{Name: "to", Kind: domain.KindString, Required: true, Description: "Recipient email address"},
				{Name: "subject", Kind: domain.KindString, Required: true, Description: "Subject line", Constraint: MaxLength(998)},
				{Name: "body", Kind: domain.KindString, Required: true, Description: "Message body"},
			},
			Scopes:  []string{ScopeGmailSend},
			Handler: d.sendEmail,
		},
		{
			Name:        "read_emails",
			Description: "Read the sender and subject of the most recent emails in the inbox.",
			Args: []domain.ArgSpec{
				{Name: "max_results", Kind: domain.KindInteger, Default: 5, Description: "How many emails to read",
					Constraint: Range{Min: 1, Max: 25}},
			},
			Scopes:  []string{ScopeGmailRead},
			Handler: d.readEmails,
		},
	}
}

// resolveRecipient accepts a phone number as is and looks anything else up in
// the contact book.
func (d Deps) resolveRecipient(recipient string) (string, error) {
	if contacts.ValidAddress(recipient) {
		return recipient, nil
	}
	if d.Contacts == nil {
		return "", fmt.Errorf("contact book is %w", ErrNotConfigured)
	}
	addr, err := d.Contacts.Lookup(recipient)
	if errors.Is(err, contacts.ErrUnknownContact) {
		return "", fmt.Errorf("I don't know the phone number for '%s', add them as a contact first: %w", recipient, err)
	}
	return addr, err
}

func (d Deps) sendWhatsApp(ctx context.Context, args domain.Args) (domain.Payload, error) {
	recipient := args.String("recipient")
	phone, err := d.resolveRecipient(recipient)
	if err != nil {
		return domain.Payload{}, err
	}
	if d.Keys.WhatsAppToken == "" || d.Keys.WhatsAppPhoneID == "" {
		return domain.Payload{}, fmt.Errorf("WhatsApp is %w (WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID)", ErrNotConfigured)
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(phone, "+"),
		"type":              "text",
		"text":              map[string]string{"body": args.String("message")},
	}
	header := http.Header{"Authorization": {"Bearer " + d.Keys.WhatsAppToken}}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	endpoint := fmt.Sprintf("%s/%s/messages", d.Endpoints.WhatsApp, url.PathEscape(d.Keys.WhatsAppPhoneID))
	if err := d.HTTP.PostJSON(ctx, endpoint, header, payload, &resp); err != nil {
		return domain.Payload{}, fmt.Errorf("send WhatsApp message: %w", err)
	}
	data := map[string]any{"to": phone}
	if len(resp.Messages) > 0 {
		data["message_id"] = resp.Messages[0].ID
	}
	return domain.Payload{Message: fmt.Sprintf("Your WhatsApp message was sent to %s.", recipient), Data: data}, nil
}

func (d Deps) addContact(_ context.Context, args domain.Args) (domain.Payload, error) {
	if d.Contacts == nil {
		return domain.Payload{}, fmt.Errorf("contact book is %w", ErrNotConfigured)
	}
	name := args.String("name")
	if err := d.Contacts.Add(name, args.String("phone_no")); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("I've added %s to your contacts.", name)}, nil
}

// gmailService builds a Gmail client for one call from a token covering scope.
func (d Deps) gmailService(ctx context.Context, scope string) (*gmail.Service, error) {
	if d.Credentials == nil {
		return nil, fmt.Errorf("google account is %w", ErrNotConfigured)
	}
	tok, err := d.Credentials.Acquire(ctx, []string{scope})
	if err != nil {
		return nil, err
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.AccessToken, TokenType: tok.TokenType})
	return gmail.NewService(ctx, option.WithTokenSource(ts), option.WithEndpoint(d.Endpoints.Gmail))
}

func (d Deps) sendEmail(ctx context.Context, args domain.Args) (domain.Payload, error) {
	to, err := mail.ParseAddress(args.String("to"))
	if err != nil {
		return domain.Payload{}, fmt.Errorf("%q is not an email address", args.String("to"))
	}
	subject := args.String("subject")
	svc, err := d.gmailService(ctx, ScopeGmailSend)
	if err != nil {
		return domain.Payload{}, err
	}

	var msg strings.Builder
	msg.WriteString("To: " + to.String() + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(args.String("body"))

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(msg.String())),
	}).Context(ctx).Do()
	if err != nil {
		return domain.Payload{}, fmt.Errorf("send email: %w", err)
	}
	return domain.Payload{
		Message: fmt.Sprintf("Email sent to %s with subject '%s'.", to.Address, subject),
		Data:    map[string]any{"id": sent.Id},
	}, nil
}

func headerValue(m *gmail.Message, name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (d Deps) readEmails(ctx context.Context, args domain.Args) (domain.Payload, error) {
	svc, err := d.gmailService(ctx, ScopeGmailRead)
	if err != nil {
		return domain.Payload{}, err
	}
	list, err := svc.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(int64(args.Int("max_results"))).
		Context(ctx).Do()
	if err != nil {
		return domain.Payload{}, fmt.Errorf("list emails: %w", err)
	}
	if len(list.Messages) == 0 {
		return domain.Payload{Message: "Your inbox is empty."}, nil
	}

	var sb strings.Builder
	sb.WriteString("Here are your latest emails:")
	emails := make([]map[string]string, 0, len(list.Messages))
	for _, item := range list.Messages {
		m, err := svc.Users.Messages.Get("me", item.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
		if err != nil {
			return domain.Payload{}, fmt.Errorf("read email %s: %w", item.Id, err)
		}
		from, subject := headerValue(m, "From"), headerValue(m, "Subject")
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(&sb, "\n\nFrom: %s\nSubject: %s", from, subject)
		emails = append(emails, map[string]string{"from": from, "subject": subject})
	}
	return domain.Payload{Message: sb.String(), Data: map[string]any{"emails": emails}}, nil
}
