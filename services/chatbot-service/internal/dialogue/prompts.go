package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/bookingapi"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/session"
)

const (
	msgWelcomeHint  = "¡Hola! Soy el asistente de reservas de la barbería. Escribí *turno* para reservar."
	msgNoLocations  = "Por el momento no hay sucursales disponibles para reservar. Probá más tarde."
	msgGenericError = "Tuvimos un problema procesando tu mensaje. Por favor intentá de nuevo en unos minutos."
	msgAbandoned    = "Listo, cancelamos la reserva en curso. Escribí *turno* cuando quieras empezar de nuevo."
	msgUnsupported  = "Por ahora solo puedo leer mensajes de texto."
	msgInvalidDate  = "No entendí la fecha. Escribila con el formato DD/MM/AAAA, por ejemplo 25/12/2025."
	msgPastDate     = "Esa fecha ya pasó. Elegí una fecha de hoy en adelante (DD/MM/AAAA)."
	msgNameTooShort = "El nombre es muy corto. Escribí tu nombre y apellido para confirmar."
	msgCompleted    = "Tu turno ya está reservado. Si necesitás cancelarlo, comunicate con la barbería. Escribí *nuevo* para reservar otro turno."
	msgInvalidOpt   = "Opción inválida."
)

// UnsupportedReply is sent for inbound messages without text.
func UnsupportedReply() string {
	return msgUnsupported
}

func displayDate(isoDate string) string {
	d, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return isoDate
	}
	return d.Format("02/01/2006")
}

func locationMenu(locs []bookingapi.Location) string {
	var b strings.Builder
	b.WriteString("¡Hola! Para reservar un turno elegí la sucursal respondiendo con el número:\n")
	for i, l := range locs {
		fmt.Fprintf(&b, "\n%d. %s", i+1, l.Name)
		if l.Address != "" {
			fmt.Fprintf(&b, " (%s)", l.Address)
		}
	}
	return b.String()
}

func staffMenu(locationName string, options []session.Option) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sucursal *%s*. ¿Con qué barbero querés atenderte?\n", locationName)
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Name)
	}
	fmt.Fprintf(&b, "\n%d. Cualquiera disponible", len(options)+1)
	return b.String()
}

func datePrompt(st session.State) string {
	who := st.StaffName
	if st.AnyStaff {
		who = "cualquier barbero disponible"
	}
	return fmt.Sprintf("Perfecto, con %s. ¿Qué día querés venir? Escribí la fecha como DD/MM/AAAA.", who)
}

func timeMenu(st session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Horarios disponibles el %s con %s:\n", displayDate(st.Date), st.StaffName)
	for i, t := range st.AvailableTimes {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t)
	}
	b.WriteString("\n\nRespondé con el número del horario.")
	return b.String()
}

func noTimes(isoDate string) string {
	return fmt.Sprintf("No quedan horarios disponibles el %s. Probá con otra fecha (DD/MM/AAAA).", displayDate(isoDate))
}

func namePrompt(st session.State) string {
	return fmt.Sprintf("Elegiste el %s a las %s con %s en %s. Para confirmar, escribí tu nombre y apellido.",
		displayDate(st.Date), st.Time, st.StaffName, st.LocationName)
}

func slotTakenTimes(st session.State) string {
	return "Ese horario se acaba de ocupar. " + timeMenu(st)
}

func slotTakenDay(isoDate string) string {
	return fmt.Sprintf("Ese horario se acaba de ocupar y no quedan otros el %s. Elegí otra fecha (DD/MM/AAAA).", displayDate(isoDate))
}

func confirmation(st session.State, b bookingapi.Booking) string {
	staff := st.StaffName
	if b.StaffName != "" {
		staff = b.StaffName
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ ¡Turno confirmado, %s!\n", st.Name)
	fmt.Fprintf(&sb, "\nSucursal: %s", st.LocationName)
	fmt.Fprintf(&sb, "\nBarbero: %s", staff)
	fmt.Fprintf(&sb, "\nFecha: %s", displayDate(st.Date))
	fmt.Fprintf(&sb, "\nHora: %s", st.Time)
	if b.ServiceName != "" {
		fmt.Fprintf(&sb, "\nServicio: %s", b.ServiceName)
	}
	if b.Price != "" {
		fmt.Fprintf(&sb, "\nPrecio: $%s", b.Price)
	}
	sb.WriteString("\n\n¡Te esperamos!")
	return sb.String()
}
