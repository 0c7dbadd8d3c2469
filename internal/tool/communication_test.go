package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"google.golang.org/api/googleapi"

	"jarvis/internal/contacts"
	"jarvis/internal/credential"
)

func openContacts(t *testing.T) *contacts.Store {
	t.Helper()
	s, err := contacts.Open(filepath.Join(t.TempDir(), "contacts.json"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type whatsappServer struct {
	*httptest.Server
	hits atomic.Int32
	to   atomic.Value
}

func newWhatsAppServer(t *testing.T) *whatsappServer {
	ws := &whatsappServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.hits.Add(1)
		if r.URL.Path != "/PHONEID/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer wa-token" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		var body struct {
			To   string `json:"to"`
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		ws.to.Store(body.To)
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	t.Cleanup(ws.Close)
	return ws
}

func whatsappDeps(ws *whatsappServer, book Contacts) Deps {
	return Deps{
		HTTP:      testHTTP(),
		Contacts:  book,
		Keys:      APIKeys{WhatsAppToken: "wa-token", WhatsAppPhoneID: "PHONEID"},
		Endpoints: Endpoints{WhatsApp: ws.URL},
	}
}

func TestSendWhatsApp_ContactName(t *testing.T) {
	book := openContacts(t)
	if err := book.Add("Mom", "+15551234567"); err != nil {
		t.Fatal(err)
	}
	ws := newWhatsAppServer(t)

	p, err := invoke(t, whatsappDeps(ws, book), "send_whatsapp_message",
		map[string]any{"recipient": "MOM", "message": "running late"})
	if err != nil {
		t.Fatal(err)
	}
	if ws.to.Load() != "15551234567" {
		t.Fatalf("unexpected recipient %v", ws.to.Load())
	}
	if p.Data["message_id"] != "wamid.1" {
		t.Fatalf("unexpected data %v", p.Data)
	}
}

func TestSendWhatsApp_PhoneNumber(t *testing.T) {
	ws := newWhatsAppServer(t)
	if _, err := invoke(t, whatsappDeps(ws, openContacts(t)), "send_whatsapp_message",
		map[string]any{"recipient": "+447700900123", "message": "hi"}); err != nil {
		t.Fatal(err)
	}
	if ws.to.Load() != "447700900123" {
		t.Fatalf("unexpected recipient %v", ws.to.Load())
	}
}

func TestSendWhatsApp_UnknownContact(t *testing.T) {
	ws := newWhatsAppServer(t)
	_, err := invoke(t, whatsappDeps(ws, openContacts(t)), "send_whatsapp_message",
		map[string]any{"recipient": "dave", "message": "hi"})
	if !errors.Is(err, contacts.ErrUnknownContact) {
		t.Fatalf("expected ErrUnknownContact, got %v", err)
	}
	if ws.hits.Load() != 0 {
		t.Fatal("nothing should be sent for an unknown contact")
	}
}

func TestAddContact(t *testing.T) {
	book := openContacts(t)
	d := Deps{Contacts: book}
	p, err := invoke(t, d, "add_contact", map[string]any{"name": "John Doe", "phone_no": "+15550001111"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Message != "I've added John Doe to your contacts." {
		t.Fatalf("unexpected message %q", p.Message)
	}

	_, err = invoke(t, d, "add_contact", map[string]any{"name": "john doe", "phone_no": "+15559999999"})
	if !errors.Is(err, contacts.ErrDuplicateContact) {
		t.Fatalf("expected ErrDuplicateContact, got %v", err)
	}
	if addr, _ := book.Lookup("John Doe"); addr != "+15550001111" {
		t.Fatalf("original address changed to %q", addr)
	}
}

func TestAddContact_InvalidPhoneFailsValidation(t *testing.T) {
	var found []string
	for _, d := range Catalog(Deps{}) {
		if d.Name != "add_contact" {
			continue
		}
		_, err := Validate(d.Args, map[string]any{"name": "x", "phone_no": "555-1234"})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Arg != "phone_no" {
			t.Fatalf("expected phone_no validation error, got %v", err)
		}
		found = append(found, d.Name)
	}
	if len(found) != 1 {
		t.Fatal("add_contact not in catalog")
	}
}

type fakeCredentials struct {
	requested [][]string
	err       error
}

func (f *fakeCredentials) Acquire(_ context.Context, required []string) (credential.Token, error) {
	f.requested = append(f.requested, required)
	if f.err != nil {
		return credential.Token{}, f.err
	}
	return credential.Token{AccessToken: "gtok", TokenType: "Bearer"}, nil
}

func TestSendEmail(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages/send" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gtok" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		var body struct{ Raw string }
		json.NewDecoder(r.Body).Decode(&body)
		raw = body.Raw
		w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{}
	d := Deps{HTTP: testHTTP(), Credentials: creds, Endpoints: Endpoints{Gmail: srv.URL + "/"}}
	p, err := invoke(t, d, "send_email", map[string]any{"to": "ann@example.com", "subject": "Lunch", "body": "Noon?"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Message != "Email sent to ann@example.com with subject 'Lunch'." {
		t.Fatalf("unexpected message %q", p.Message)
	}
	if len(creds.requested) != 1 || creds.requested[0][0] != ScopeGmailSend {
		t.Fatalf("unexpected scopes requested %v", creds.requested)
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw is not base64url: %v", err)
	}
	msg := string(decoded)
	for _, want := range []string{"To: <ann@example.com>\r\n", "Subject: Lunch\r\n", "\r\n\r\nNoon?"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendEmail_AuthorizationDenied(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	creds := &fakeCredentials{err: credential.ErrAuthorizationDenied}
	d := Deps{HTTP: testHTTP(), Credentials: creds, Endpoints: Endpoints{Gmail: srv.URL + "/"}}
	_, err := invoke(t, d, "send_email", map[string]any{"to": "ann@example.com", "subject": "s", "body": "b"})
	if !errors.Is(err, credential.ErrAuthorizationDenied) {
		t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("no request should be made without a token")
	}
}

func TestSendEmail_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"Insufficient Permission"}}`))
	}))
	defer srv.Close()

	d := Deps{Credentials: &fakeCredentials{}, Endpoints: Endpoints{Gmail: srv.URL + "/"}}
	_, err := invoke(t, d, "send_email", map[string]any{"to": "ann@example.com", "subject": "s", "body": "b"})
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		t.Fatalf("expected a 403 API error, got %v", err)
	}
}

func TestSendEmail_BadAddress(t *testing.T) {
	creds := &fakeCredentials{}
	_, err := invoke(t, Deps{Credentials: creds}, "send_email", map[string]any{"to": "not an address", "subject": "s", "body": "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(creds.requested) != 0 {
		t.Fatal("credentials should not be requested for a bad address")
	}
}

func TestReadEmails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages":
			if r.URL.Query().Get("maxResults") != "5" || r.URL.Query().Get("labelIds") != "INBOX" {
				t.Errorf("unexpected query %v", r.URL.Query())
			}
			w.Write([]byte(`{"messages":[{"id":"a"},{"id":"b"}]}`))
		case "/gmail/v1/users/me/messages/a":
			if got := r.URL.Query()["metadataHeaders"]; strings.Join(got, ",") != "From,Subject" || r.URL.Query().Get("format") != "metadata" {
				t.Errorf("unexpected get query %v", r.URL.Query())
			}
			w.Write([]byte(`{"payload":{"headers":[{"name":"From","value":"Ann"},{"name":"Subject","value":"Lunch"}]}}`))
		case "/gmail/v1/users/me/messages/b":
			w.Write([]byte(`{"payload":{"headers":[{"name":"From","value":"Bob"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	creds := &fakeCredentials{}
	d := Deps{HTTP: testHTTP(), Credentials: creds, Endpoints: Endpoints{Gmail: srv.URL + "/"}}
	p, err := invoke(t, d, "read_emails", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "Here are your latest emails:\n\nFrom: Ann\nSubject: Lunch\n\nFrom: Bob\nSubject: (no subject)"
	if p.Message != want {
		t.Fatalf("expected %q, got %q", want, p.Message)
	}
	if creds.requested[0][0] != ScopeGmailRead {
		t.Fatalf("unexpected scope %v", creds.requested)
	}
}

func TestReadEmails_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultSizeEstimate":0}`))
	}))
	defer srv.Close()

	d := Deps{HTTP: testHTTP(), Credentials: &fakeCredentials{}, Endpoints: Endpoints{Gmail: srv.URL + "/"}}
	p, err := invoke(t, d, "read_emails", map[string]any{"max_results": 3})
	if err != nil {
		t.Fatal(err)
	}
	if p.Message != "Your inbox is empty." {
		t.Fatalf("unexpected message %q", p.Message)
	}
}
