package notify

import (
	"bytes"
	"html/template"

	"github.com/barberbook/barberbook/services/booking-service/internal/model"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>¡Tu turno está confirmado!</h2>
  <p>Hola {{.ClientName}}, te esperamos.</p>
  <table cellpadding="4">
    <tr><td><strong>Sucursal</strong></td><td>{{.LocationName}}</td></tr>
    <tr><td><strong>Barbero</strong></td><td>{{.StaffName}}</td></tr>
    <tr><td><strong>Servicio</strong></td><td>{{.ServiceName}}</td></tr>
    <tr><td><strong>Fecha</strong></td><td>{{.Date}}</td></tr>
    <tr><td><strong>Hora</strong></td><td>{{.Time}} hs</td></tr>
    <tr><td><strong>Precio</strong></td><td>${{.Price}}</td></tr>
  </table>
  <p>Si no podés asistir, avisanos con anticipación.</p>
</body>
</html>
`))

type confirmationData struct {
	ClientName   string
	LocationName string
	StaffName    string
	ServiceName  string
	Date         string
	Time         string
	Price        string
}

// ConfirmationEmail renders the subject and HTML body sent after a booking.
func ConfirmationEmail(appt model.Appointment) (string, string, error) {
	data := confirmationData{
		ClientName:   appt.ClientName,
		LocationName: appt.LocationName,
		StaffName:    appt.StaffName,
		ServiceName:  appt.ServiceName,
		Date:         appt.Date.Format("02/01/2006"),
		Time:         appt.Time,
		Price:        appt.Price,
	}
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject := "Turno confirmado - " + data.Date + " " + data.Time
	return subject, buf.String(), nil
}
