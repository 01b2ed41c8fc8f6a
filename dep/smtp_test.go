package dep

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/config"
	"mailflow/pkg/errutil"
)

func smtpRequest() *SendRequest {
	return &SendRequest{
		ToEmail:     "ada@example.com",
		FromEmail:   "news@example.com",
		Subject:     "Hello",
		HtmlContent: "<p>Hi</p>",
		TextContent: "Hi",
	}
}

// scriptedSMTPServer speaks just enough of the protocol for one
// delivery and hands back the DATA payload.
func scriptedSMTPServer(t *testing.T, ln net.Listener, data chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(s string) { conn.Write([]byte(s + "\r\n")) }

	write("220 ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 ok")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
			write("250 ok")
		case strings.HasPrefix(cmd, "DATA"):
			write("354 go ahead")
			var b strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				b.WriteString(dl)
			}
			data <- b.String()
			write("250 queued")
		case strings.HasPrefix(cmd, "QUIT"):
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func smtpSenderFor(t *testing.T, ln net.Listener) EmailSender {
	addr := ln.Addr().(*net.TCPAddr)
	return NewSMTPSender(config.SMTP{Host: "127.0.0.1", Port: addr.Port})
}

func TestSMTPSendDelivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	data := make(chan string, 1)
	go scriptedSMTPServer(t, ln, data)

	s := smtpSenderFor(t, ln)
	res, err := s.Send(context.Background(), smtpRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	select {
	case msg := <-data:
		assert.Contains(t, msg, "Subject: Hello")
		assert.Contains(t, msg, "<p>Hi</p>")
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestSMTPSendHonorsContextDeadline(t *testing.T) {
	// accept the connection but never send the greeting
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(10 * time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s := smtpSenderFor(t, ln)
	start := time.Now()
	_, err = s.Send(ctx, smtpRequest())

	require.Error(t, err)
	assert.True(t, errutil.IsRetriable(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPSenderIsConfigured(t *testing.T) {
	assert.False(t, NewSMTPSender(config.SMTP{}).IsConfigured())
	assert.True(t, NewSMTPSender(config.SMTP{Host: "127.0.0.1", Port: 25}).IsConfigured())
}
