package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"safetyeye/pkg/models"
)

// SMTPConfig configures the email notifier. Host, Username, Password and
// at least one recipient are required; the notifier refuses to construct
// without them so the pipeline never attempts a send with partial
// credentials.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Recipients []string
	UseTLS     bool
}

// SMTPNotifier sends alert emails. Each Notify call is one independent,
// synchronous SMTP session; nothing is queued or batched.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier validates the sender configuration.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smtp credentials are required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if cfg.Port <= 0 {
		if cfg.UseTLS {
			cfg.Port = 465
		} else {
			cfg.Port = 587
		}
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Notify sends one alert email.
func (n *SMTPNotifier) Notify(alert *models.Alert) error {
	subject := "[SafetyEye] PPE Violations Detected"
	body := fmt.Sprintf("Total violations: %d\r\nPeople in frame: %d\r\n",
		alert.ViolationCount, alert.PeopleCount)
	if len(alert.Missing) > 0 {
		body += fmt.Sprintf("Missing equipment: %s\r\n", strings.Join(alert.Missing, ", "))
	}

	msg := strings.Builder{}
	msg.WriteString("From: " + n.cfg.Username + "\r\n")
	msg.WriteString("To: " + strings.Join(n.cfg.Recipients, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	client, err := n.dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := client.Mail(n.cfg.Username); err != nil {
		return fmt.Errorf("smtp mail failed: %w", err)
	}
	for _, rcpt := range n.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt failed: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		w.Close()
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}
	return client.Quit()
}

// dial opens the SMTP session: implicit TLS when UseTLS, otherwise a plain
// connection upgraded with STARTTLS when the server offers it.
func (n *SMTPNotifier) dial(addr string) (*smtp.Client, error) {
	if n.cfg.UseTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host})
		if err != nil {
			return nil, err
		}
		client, err := smtp.NewClient(conn, n.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

// Close is a no-op; each send owns its own connection.
func (n *SMTPNotifier) Close() error {
	return nil
}
