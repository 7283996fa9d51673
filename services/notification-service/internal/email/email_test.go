package email

import (
	"bytes"
	"io"
	"mime/quotedprintable"
	"strings"
	"testing"
	"time"

	"github.com/barberbook/barberbook/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderMessage(t *testing.T, msg Message) string {
	t.Helper()
	var buf bytes.Buffer
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	_, err := newMessage("turnos@barberbook.local", msg, now).WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestNewMessage(t *testing.T) {
	raw := renderMessage(t, Message{
		To:      "juan@example.com",
		Subject: "Turno confirmado ✂",
		HTML:    "<p>hola</p>\n<p>chau</p>",
	})

	assert.Contains(t, raw, "From: turnos@barberbook.local\r\n")
	assert.Contains(t, raw, "To: juan@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?UTF-8?q?")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable\r\n")
	assert.Contains(t, raw, "<p>hola</p>\r\n<p>chau</p>")
}

func TestNewMessageLineEndingsAndLength(t *testing.T) {
	long := strings.Repeat("a", 2000)
	raw := renderMessage(t, Message{
		To:      "juan@example.com",
		Subject: "Turno",
		HTML:    "<p>x</p>\r\n<p>" + long + "</p>",
	})

	assert.NotContains(t, raw, "\r\r\n")
	for _, line := range strings.Split(raw, "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
		assert.NotContains(t, line, "\n")
	}

	_, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "<p>x</p>\r\n<p>"+long+"</p>")
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("5491155550001@whatsapp.placeholder"))
	assert.True(t, IsPlaceholder(" 1@WhatsApp.Placeholder"))
	assert.False(t, IsPlaceholder("juan@example.com"))
}

func TestCancellationEmail(t *testing.T) {
	subject, html, err := CancellationEmail(kafkax.AppointmentEvent{
		ClientName:   "Juan <script>",
		LocationName: "Centro",
		StaffName:    "Carlos",
		Date:         "2025-12-25",
		Time:         "09:00",
		Reason:       "feriado",
	})
	require.NoError(t, err)
	assert.Equal(t, "Turno cancelado - 25/12/2025 09:00", subject)
	assert.Contains(t, html, "Juan &lt;script&gt;")
	assert.Contains(t, html, "Motivo: feriado")
	assert.Contains(t, html, "25/12/2025")
}
