package notifier

import (
	"context"
	"testing"
)

func TestSMTPNotifier_RejectsBadRecipient(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: 2525, From: "alerts@example.com"}, discardLogger())
	d := sampleDigest(t, 1)
	d.Recipient = "not an address"

	if err := n.Send(context.Background(), d); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestSMTPNotifier_ClientOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		want int
	}{
		{"no auth mandatory tls", SMTPConfig{Port: 587}, 2},
		{"auth ssl", SMTPConfig{Port: 465, Username: "u", Password: "p", TLS: TLSImplicit}, 5},
		{"none", SMTPConfig{Port: 25, TLS: TLSNone}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewSMTPNotifier(tt.cfg, discardLogger())
			if got := len(n.clientOptions()); got != tt.want {
				t.Errorf("options = %d, want %d", got, tt.want)
			}
		})
	}
}
