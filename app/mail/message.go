package mail

import (
	"bytes"
	"fmt"
	"io"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

const resetCodeSubject = "Your password reset code"

// ComposeResetCode renders the RFC 5322 message carrying a password reset code.
func ComposeResetCode(from, to, code string, ttl time.Duration, now time.Time) ([]byte, error) {
	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Address: from}})
	h.SetAddressList("To", []*gomail.Address{{Address: to}})
	h.SetSubject(resetCodeSubject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf(
		"Your verification code is %s.\r\n\r\nThe code expires in %d minutes and can be used once.\r\nIf you did not request a password reset you can ignore this message.\r\n",
		code, int(ttl.Minutes()),
	)
	if _, err = io.WriteString(w, body); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
