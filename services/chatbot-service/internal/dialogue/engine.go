package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	otelx "github.com/barberbook/barberbook/libs/otel"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/bookingapi"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const SourceWhatsApp = "whatsapp"

var DefaultTriggerKeywords = []string{"hola", "turno", "turnos", "reservar", "reserva", "cita"}

var datePattern = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

type Config struct {
	SessionTTL      time.Duration
	CompletedTTL    time.Duration
	Location        *time.Location
	TriggerKeywords []string
	Picker          StaffPicker
	Source          string
}

type Engine struct {
	store   session.Store
	backend Backend
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewEngine(store session.Store, backend Backend, cfg Config, logger *slog.Logger) *Engine {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.TriggerKeywords) == 0 {
		cfg.TriggerKeywords = DefaultTriggerKeywords
	}
	if cfg.Picker == nil {
		cfg.Picker = FirstMatch{}
	}
	if cfg.Source == "" {
		cfg.Source = SourceWhatsApp
	}
	return &Engine{
		store:   store,
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Handle processes one inbound text and returns exactly one reply. On collaborator failure the
// reply is a generic apology, the error is returned for logging and the state is left untouched.
func (e *Engine) Handle(ctx context.Context, msg chat.Message) (string, error) {
	ctx, span := otelx.Tracer("chatbot-service").Start(ctx, "dialogue.handle")
	defer span.End()

	unlock, err := e.store.Lock(ctx, msg.Sender)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return msgGenericError, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	st, ok, err := e.store.Get(ctx, msg.Sender)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load")
		return msgGenericError, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || st.Step.Index() < 0 {
		st = session.State{Step: session.StepGreeting}
	}
	span.SetAttributes(attribute.String("dialogue.step", string(st.Step)))

	t := turn{sender: msg.Sender, text: strings.TrimSpace(msg.Text), state: st}
	reply, err := e.dispatch(ctx, &t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collaborator")
		return msgGenericError, err
	}

	switch {
	case t.drop:
		err = e.store.Delete(ctx, msg.Sender)
	case t.save:
		t.state.UpdatedAt = e.now().UTC()
		ttl := e.cfg.SessionTTL
		if t.state.Step == session.StepCompleted {
			ttl = e.cfg.CompletedTTL
		}
		err = e.store.Put(ctx, msg.Sender, t.state, ttl)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return msgGenericError, fmt.Errorf("persist conversation: %w", err)
	}

	if t.state.Step != st.Step {
		e.logger.Debug("conversation advanced",
			"sender", runtime.MaskPhone(msg.Sender),
			"from", st.Step,
			"step", t.state.Step,
		)
	}
	return reply, nil
}

// turn is the mutable working copy for one message. Nothing is stored unless save or drop is set.
type turn struct {
	sender string
	text   string
	state  session.State
	save   bool
	drop   bool
}

func (t *turn) advance(step session.Step) {
	t.state.Step = step
	t.save = true
}

func (e *Engine) dispatch(ctx context.Context, t *turn) (string, error) {
	cmd := command(t.text)
	if t.state.Step != session.StepGreeting && t.state.Step != session.StepCompleted {
		switch cmd {
		case "salir", "cancelar":
			t.drop = true
			return msgAbandoned, nil
		case "menu", "menú", "inicio":
			return e.start(ctx, t)
		}
	}

	switch t.state.Step {
	case session.StepGreeting:
		return e.greeting(ctx, t)
	case session.StepLocation:
		return e.chooseLocation(ctx, t)
	case session.StepBarber:
		return e.chooseBarber(t)
	case session.StepDate:
		return e.chooseDate(ctx, t)
	case session.StepTime:
		return e.chooseTime(t)
	case session.StepConfirmation:
		return e.confirm(ctx, t)
	case session.StepCompleted:
		switch cmd {
		case "nuevo", "menu", "menú", "inicio":
			return e.start(ctx, t)
		}
		return msgCompleted, nil
	}
	return e.greeting(ctx, t)
}

func (e *Engine) greeting(ctx context.Context, t *turn) (string, error) {
	if !e.triggered(t.text) {
		return msgWelcomeHint, nil
	}
	return e.start(ctx, t)
}

// start opens a new conversation at the location menu.
func (e *Engine) start(ctx context.Context, t *turn) (string, error) {
	locs, err := e.backend.Locations(ctx)
	if err != nil {
		return "", fmt.Errorf("list locations: %w", err)
	}
	if len(locs) == 0 {
		return msgNoLocations, nil
	}
	t.state = session.State{ConversationID: e.newID()}
	t.advance(session.StepLocation)
	return locationMenu(locs), nil
}

func (e *Engine) chooseLocation(ctx context.Context, t *turn) (string, error) {
	locs, err := e.backend.Locations(ctx)
	if err != nil {
		return "", fmt.Errorf("list locations: %w", err)
	}
	if len(locs) == 0 {
		return msgNoLocations, nil
	}
	idx, ok := menuIndex(t.text, len(locs))
	if !ok {
		idx, ok = matchLocation(t.text, locs)
	}
	if !ok {
		return msgInvalidOpt + " " + locationMenu(locs), nil
	}
	loc := locs[idx]

	staff, err := e.backend.Staff(ctx, loc.ID)
	if err != nil {
		return "", fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		return fmt.Sprintf("La sucursal %s no tiene barberos disponibles. ", loc.Name) + locationMenu(locs), nil
	}

	options := make([]session.Option, 0, len(staff))
	for _, s := range staff {
		options = append(options, session.Option{ID: s.ID, Name: s.Name})
	}
	t.state.LocationID = loc.ID
	t.state.LocationName = loc.Name
	t.state.StaffOptions = options
	t.advance(session.StepBarber)
	return staffMenu(loc.Name, options), nil
}

func (e *Engine) chooseBarber(t *turn) (string, error) {
	options := t.state.StaffOptions
	if len(options) == 0 {
		return msgGenericError, errors.New("barber step without staff options")
	}

	idx, ok := menuIndex(t.text, len(options)+1)
	switch {
	case ok && idx < len(options):
		t.state.StaffID = options[idx].ID
		t.state.StaffName = options[idx].Name
		t.state.AnyStaff = false
	case ok || isAnyStaff(t.text):
		picked := e.cfg.Picker.Pick(t.sender, options)
		t.state.StaffID = picked.ID
		t.state.StaffName = picked.Name
		t.state.AnyStaff = true
	default:
		return msgInvalidOpt + " " + staffMenu(t.state.LocationName, options), nil
	}
	t.advance(session.StepDate)
	return datePrompt(t.state), nil
}

func (e *Engine) chooseDate(ctx context.Context, t *turn) (string, error) {
	if !datePattern.MatchString(t.text) {
		return msgInvalidDate, nil
	}
	day, err := time.ParseInLocation("2/1/2006", t.text, e.cfg.Location)
	if err != nil {
		return msgInvalidDate, nil
	}
	now := e.now().In(e.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location)
	if day.Before(today) {
		return msgPastDate, nil
	}

	date := day.Format("2006-01-02")
	staff, times, err := e.freeTimes(ctx, t.state, date)
	if err != nil {
		return "", err
	}
	if len(times) == 0 {
		return noTimes(date), nil
	}
	t.state.StaffID = staff.ID
	t.state.StaffName = staff.Name
	t.state.Date = date
	t.state.AvailableTimes = times
	t.advance(session.StepTime)
	return timeMenu(t.state), nil
}

// freeTimes asks for the selected staff member's free times. With "any available" it falls
// back to the other staff members in menu order until one has free times.
func (e *Engine) freeTimes(ctx context.Context, st session.State, date string) (session.Option, []string, error) {
	candidates := []session.Option{{ID: st.StaffID, Name: st.StaffName}}
	if st.AnyStaff {
		for _, o := range st.StaffOptions {
			if o.ID != st.StaffID {
				candidates = append(candidates, o)
			}
		}
	}
	for _, c := range candidates {
		times, err := e.backend.FreeTimes(ctx, st.LocationID, c.ID, date)
		if err != nil {
			return session.Option{}, nil, fmt.Errorf("free times: %w", err)
		}
		if len(times) > 0 {
			return c, times, nil
		}
	}
	return candidates[0], nil, nil
}

func (e *Engine) chooseTime(t *turn) (string, error) {
	idx, ok := menuIndex(t.text, len(t.state.AvailableTimes))
	if !ok {
		idx = slices.Index(t.state.AvailableTimes, t.text)
		ok = idx >= 0
	}
	if !ok {
		return msgInvalidOpt + " " + timeMenu(t.state), nil
	}
	t.state.Time = t.state.AvailableTimes[idx]
	t.advance(session.StepConfirmation)
	return namePrompt(t.state), nil
}

func (e *Engine) confirm(ctx context.Context, t *turn) (string, error) {
	name := strings.Join(strings.Fields(t.text), " ")
	if utf8.RuneCountInString(name) <= 2 {
		return msgNameTooShort, nil
	}

	booking, err := e.backend.Book(ctx, bookingapi.BookRequest{
		LocationID:     t.state.LocationID,
		StaffID:        t.state.StaffID,
		Date:           t.state.Date,
		Time:           t.state.Time,
		CustomerName:   name,
		CustomerPhone:  t.sender,
		Source:         e.cfg.Source,
		IdempotencyKey: t.sender + ":" + t.state.ConversationID,
	})
	if errors.Is(err, bookingapi.ErrSlotTaken) || errors.Is(err, bookingapi.ErrSlotUnavailable) {
		return e.slotTaken(ctx, t)
	}
	if err != nil {
		return "", fmt.Errorf("book appointment: %w", err)
	}

	t.state.Name = name
	reply := confirmation(t.state, booking)
	e.logger.Info("appointment booked via chat",
		"sender", runtime.MaskPhone(t.sender),
		"appointment_id", booking.AppointmentID,
		"location_id", t.state.LocationID,
		"staff_id", t.state.StaffID,
	)
	t.state = session.State{
		ConversationID: t.state.ConversationID,
		Step:           session.StepCompleted,
		AppointmentID:  booking.AppointmentID,
	}
	t.save = true
	return reply, nil
}

// slotTaken refreshes the day's times after a lost race and sends the sender back to pick again.
func (e *Engine) slotTaken(ctx context.Context, t *turn) (string, error) {
	staff, times, err := e.freeTimes(ctx, t.state, t.state.Date)
	if err != nil {
		return "", err
	}
	t.state.Time = ""
	if len(times) == 0 {
		date := t.state.Date
		t.state.Date = ""
		t.state.AvailableTimes = nil
		t.advance(session.StepDate)
		return slotTakenDay(date), nil
	}
	t.state.StaffID = staff.ID
	t.state.StaffName = staff.Name
	t.state.AvailableTimes = times
	t.advance(session.StepTime)
	return slotTakenTimes(t.state), nil
}

func (e *Engine) triggered(text string) bool {
	for _, word := range words(text) {
		for _, kw := range e.cfg.TriggerKeywords {
			if word == strings.ToLower(kw) {
				return true
			}
		}
	}
	return false
}

// menuIndex parses a 1-based option number into a 0-based index below n.
func menuIndex(text string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ".")))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

func matchLocation(text string, locs []bookingapi.Location) (int, bool) {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return 0, false
	}
	for i, l := range locs {
		if strings.EqualFold(l.Name, norm) {
			return i, true
		}
	}
	tokens := words(text)
	for i, l := range locs {
		for _, kw := range l.Keywords {
			if slices.Contains(tokens, strings.ToLower(kw)) {
				return i, true
			}
		}
	}
	return 0, false
}

func isAnyStaff(text string) bool {
	switch command(text) {
	case "cualquiera", "cualquier", "any", "indistinto", "da igual":
		return true
	}
	return false
}

// command is the lower-cased message with surrounding punctuation removed.
func command(text string) string {
	return strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
