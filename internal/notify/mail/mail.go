// Package mail renders receipts and delivers them over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"github.com/xenking/kart-storefront/internal/notify"
)

//go:embed templates/*.html
var templateFS embed.FS

// Dialer is the subset of *gomail.Dialer used by Sender.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

var (
	_ Dialer        = (*gomail.Dialer)(nil)
	_ notify.Sender = (*Sender)(nil)
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// NewDialer creates a gomail Dialer from cfg.
func NewDialer(cfg Config) *gomail.Dialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return d
}

// Sender renders receipts into HTML emails.
type Sender struct {
	d    Dialer
	from string
	tmpl map[notify.Kind]*template.Template
}

// NewSender parses the embedded templates.
func NewSender(d Dialer, from string) (*Sender, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return "$" + d.StringFixed(2) },
		"date": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
	}

	s := &Sender{d: d, from: from, tmpl: make(map[notify.Kind]*template.Template)}
	for kind, file := range map[notify.Kind]string{
		notify.KindPurchase: "templates/purchase.html",
		notify.KindShipping: "templates/shipping.html",
	} {
		t, err := template.New("").Funcs(funcs).ParseFS(templateFS, file)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", file)
		}
		s.tmpl[kind] = t.Lookup(file[len("templates/"):])
	}
	return s, nil
}

// Send renders r and delivers it to the customer.
func (s *Sender) Send(ctx context.Context, r notify.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.Render(r)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", r.Email, r.Name)
	m.SetHeader("Subject", r.Subject())
	m.SetBody("text/html", body)

	if err := s.d.DialAndSend(m); err != nil {
		return errors.Wrapf(err, "send %s receipt to %s", r.Kind, r.Email)
	}
	return nil
}

// Render returns the HTML body of r.
func (s *Sender) Render(r notify.Receipt) (string, error) {
	t, ok := s.tmpl[r.Kind]
	if !ok {
		return "", errors.Errorf("unknown receipt kind %q", r.Kind)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, r); err != nil {
		return "", errors.Wrapf(err, "render %s receipt", r.Kind)
	}
	return buf.String(), nil
}
