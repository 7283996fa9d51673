package email

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/barberbook/barberbook/libs/kafkax"
)

// placeholderDomain marks addresses synthesized for clients who booked over chat.
const placeholderDomain = "@whatsapp.placeholder"

func IsPlaceholder(addr string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(addr)), placeholderDomain)
}

var cancellationTmpl = template.Must(template.New("cancellation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Tu turno fue cancelado</h2>
  <p>Hola {{.ClientName}}, te avisamos que el siguiente turno quedó cancelado.</p>
  <table cellpadding="4">
    <tr><td><strong>Sucursal</strong></td><td>{{.LocationName}}</td></tr>
    <tr><td><strong>Barbero</strong></td><td>{{.StaffName}}</td></tr>
    <tr><td><strong>Fecha</strong></td><td>{{.Date}}</td></tr>
    <tr><td><strong>Hora</strong></td><td>{{.Time}} hs</td></tr>
  </table>
  {{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}
  <p>Podés reservar un nuevo turno cuando quieras.</p>
</body>
</html>
`))

type cancellationData struct {
	ClientName   string
	LocationName string
	StaffName    string
	Date         string
	Time         string
	Reason       string
}

func CancellationEmail(evt kafkax.AppointmentEvent) (string, string, error) {
	date := evt.Date
	if d, err := time.Parse("2006-01-02", evt.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	var buf bytes.Buffer
	err := cancellationTmpl.Execute(&buf, cancellationData{
		ClientName:   evt.ClientName,
		LocationName: evt.LocationName,
		StaffName:    evt.StaffName,
		Date:         date,
		Time:         evt.Time,
		Reason:       evt.Reason,
	})
	if err != nil {
		return "", "", err
	}
	return "Turno cancelado - " + date + " " + evt.Time, buf.String(), nil
}
