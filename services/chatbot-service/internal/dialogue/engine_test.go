package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/bookingapi"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/chat"
	"github.com/barberbook/barberbook/services/chatbot-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotKey struct {
	location, staff, date, time string
}

// fakeBackend books into memory and enforces one booking per slot.
type fakeBackend struct {
	mu        sync.Mutex
	locations []bookingapi.Location
	staff     map[string][]bookingapi.Staff
	template  []string
	booked    map[slotKey]string
	byKey     map[string]bookingapi.Booking
	requests  []bookingapi.BookRequest
	staffErr  error
	bookErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		locations: []bookingapi.Location{
			{ID: "loc-1", Name: "Centro", Address: "San Martín 100", Keywords: []string{"centro"}},
			{ID: "loc-2", Name: "Norte", Keywords: []string{"norte"}},
		},
		staff: map[string][]bookingapi.Staff{
			"loc-1": {{ID: "st-1", Name: "Carlos"}, {ID: "st-2", Name: "Lucía"}, {ID: "st-3", Name: "Mateo"}, {ID: "st-4", Name: "Sofía"}},
		},
		template: []string{"09:00", "09:30", "10:00"},
		booked:   make(map[slotKey]string),
		byKey:    make(map[string]bookingapi.Booking),
	}
}

func (f *fakeBackend) Locations(context.Context) ([]bookingapi.Location, error) {
	return f.locations, nil
}

func (f *fakeBackend) Staff(_ context.Context, locationID string) ([]bookingapi.Staff, error) {
	if f.staffErr != nil {
		return nil, f.staffErr
	}
	return f.staff[locationID], nil
}

func (f *fakeBackend) FreeTimes(_ context.Context, locationID, staffID, date string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.template {
		if _, taken := f.booked[slotKey{locationID, staffID, date, t}]; !taken {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeBackend) Book(_ context.Context, req bookingapi.BookRequest) (bookingapi.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return bookingapi.Booking{}, f.bookErr
	}
	if b, ok := f.byKey[req.IdempotencyKey]; ok {
		return b, nil
	}
	k := slotKey{req.LocationID, req.StaffID, req.Date, req.Time}
	if _, taken := f.booked[k]; taken {
		return bookingapi.Booking{}, bookingapi.ErrSlotTaken
	}
	id := fmt.Sprintf("ap-%d", len(f.booked)+1)
	f.booked[k] = id
	f.requests = append(f.requests, req)
	b := bookingapi.Booking{AppointmentID: id, Status: "confirmed", Price: "5000.00", ServiceName: "Corte"}
	f.byKey[req.IdempotencyKey] = b
	return b, nil
}

func (f *fakeBackend) take(location, staff, date, t string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked[slotKey{location, staff, date, t}] = "other"
}

type harness struct {
	t       *testing.T
	engine  *Engine
	store   *session.MemoryStore
	backend *fakeBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := session.NewMemoryStore()
	backend := newFakeBackend()
	e := NewEngine(store, backend, Config{Location: time.FixedZone("ART", -3*60*60)}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2025, 12, 1, 13, 0, 0, 0, time.UTC) }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("conv-%d", n)
	}
	return &harness{t: t, engine: e, store: store, backend: backend}
}

func (h *harness) send(sender, text string) string {
	h.t.Helper()
	reply, err := h.engine.Handle(context.Background(), chat.Message{Sender: sender, Text: text, Kind: chat.KindText})
	require.NoError(h.t, err)
	require.NotEmpty(h.t, reply)
	return reply
}

func (h *harness) state(sender string) (session.State, bool) {
	h.t.Helper()
	st, ok, err := h.store.Get(context.Background(), sender)
	require.NoError(h.t, err)
	return st, ok
}

func (h *harness) step(sender string) session.Step {
	h.t.Helper()
	st, ok := h.state(sender)
	if !ok {
		return session.StepGreeting
	}
	return st.Step
}

// driveTo answers each step with its happy-path input until sender reaches want.
func (h *harness) driveTo(sender string, want session.Step, staffOption string) {
	h.t.Helper()
	inputs := []string{"hola", "1", staffOption, "25/12/2025", "1", "Juan Pérez"}
	for i := 0; i < len(inputs) && h.step(sender) != want; i++ {
		idx := h.step(sender).Index()
		require.Less(h.t, idx, len(inputs))
		h.send(sender, inputs[idx])
	}
	require.Equal(h.t, want, h.step(sender))
}

func TestScenarioHappyPath(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550001"

	reply := h.send(sender, "hola")
	assert.Contains(t, reply, "1. Centro")
	assert.Contains(t, reply, "2. Norte")
	assert.Equal(t, session.StepLocation, h.step(sender))

	reply = h.send(sender, "1")
	assert.Contains(t, reply, "1. Carlos")
	assert.Contains(t, reply, "5. Cualquiera disponible")
	assert.Equal(t, session.StepBarber, h.step(sender))

	reply = h.send(sender, "5")
	assert.Contains(t, reply, "DD/MM/AAAA")
	st, _ := h.state(sender)
	assert.Equal(t, session.StepDate, st.Step)
	assert.True(t, st.AnyStaff)
	assert.Equal(t, "st-1", st.StaffID)

	reply = h.send(sender, "25/12/2025")
	assert.Contains(t, reply, "25/12/2025")
	assert.Contains(t, reply, "1. 09:00")
	assert.Equal(t, session.StepTime, h.step(sender))

	reply = h.send(sender, "1")
	assert.Contains(t, reply, "nombre y apellido")
	assert.Equal(t, session.StepConfirmation, h.step(sender))

	reply = h.send(sender, "Juan Pérez")
	assert.Contains(t, reply, "Turno confirmado, Juan Pérez")
	assert.Contains(t, reply, "Fecha: 25/12/2025")
	assert.Contains(t, reply, "Hora: 09:00")

	st, ok := h.state(sender)
	require.True(t, ok)
	assert.Equal(t, session.State{ConversationID: "conv-1", Step: session.StepCompleted, AppointmentID: "ap-1", UpdatedAt: st.UpdatedAt}, st)

	require.Len(t, h.backend.requests, 1)
	req := h.backend.requests[0]
	assert.Equal(t, bookingapi.BookRequest{
		LocationID:     "loc-1",
		StaffID:        "st-1",
		Date:           "2025-12-25",
		Time:           "09:00",
		CustomerName:   "Juan Pérez",
		CustomerPhone:  sender,
		Source:         "whatsapp",
		IdempotencyKey: sender + ":conv-1",
	}, req)
}

func TestStepsNeverGoBackward(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550002"
	inputs := []string{"hola", "x", "1", "99", "2", "31/02/2025", "01/01/2020", "25/12/2025", "0", "2", "J", "Ana Gómez"}

	prev := session.StepGreeting.Index()
	for _, in := range inputs {
		h.send(sender, in)
		cur := h.step(sender).Index()
		assert.GreaterOrEqual(t, cur, prev, "input %q", in)
		assert.LessOrEqual(t, cur-prev, 1, "input %q skipped a step", in)
		prev = cur
	}
	assert.Equal(t, session.StepCompleted, h.step(sender))
}

func TestBookedSlotDisappearsFromAvailability(t *testing.T) {
	h := newHarness(t)
	h.driveTo("5491155550003", session.StepCompleted, "1")

	times, err := h.backend.FreeTimes(context.Background(), "loc-1", "st-1", "2025-12-25")
	require.NoError(t, err)
	assert.NotContains(t, times, "09:00")
	assert.Equal(t, []string{"09:30", "10:00"}, times)
}

func TestPastDateRepromptsWithoutAdvancing(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550004"
	h.driveTo(sender, session.StepDate, "1")
	before, _ := h.state(sender)

	first := h.send(sender, "25/12/2020")
	assert.Equal(t, msgPastDate, first)
	after, _ := h.state(sender)
	assert.Equal(t, before, after)

	second := h.send(sender, "25/12/2020")
	assert.Equal(t, first, second)

	today := h.send(sender, "1/12/2025")
	assert.Contains(t, today, "01/12/2025")
	assert.Equal(t, session.StepTime, h.step(sender))
}

func TestInvalidInputRepromptsIdentically(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550005"

	cases := []struct {
		step  session.Step
		input string
	}{
		{session.StepLocation, "7"},
		{session.StepBarber, "abc"},
		{session.StepDate, "mañana"},
		{session.StepTime, "12"},
		{session.StepConfirmation, "Jo"},
	}
	for _, tc := range cases {
		h.driveTo(sender, tc.step, "2")
		before, _ := h.state(sender)
		first := h.send(sender, tc.input)
		second := h.send(sender, tc.input)
		after, _ := h.state(sender)
		assert.Equal(t, first, second, "step %s", tc.step)
		assert.Equal(t, before, after, "step %s", tc.step)
	}
}

func TestConcurrentConversationsCannotDoubleBook(t *testing.T) {
	h := newHarness(t)
	const s1, s2 = "5491155550006", "5491155550007"
	h.driveTo(s1, session.StepConfirmation, "1")
	h.driveTo(s2, session.StepConfirmation, "1")

	reply := h.send(s1, "Ana Gómez")
	assert.Contains(t, reply, "Turno confirmado")

	reply = h.send(s2, "Beto Díaz")
	assert.Contains(t, reply, "se acaba de ocupar")
	assert.Contains(t, reply, "1. 09:30")

	st, _ := h.state(s2)
	assert.Equal(t, session.StepTime, st.Step)
	assert.Empty(t, st.Time)
	assert.Equal(t, []string{"09:30", "10:00"}, st.AvailableTimes)
	assert.Len(t, h.backend.requests, 1)

	h.send(s2, "1")
	reply = h.send(s2, "Beto Díaz")
	assert.Contains(t, reply, "Hora: 09:30")
	assert.Len(t, h.backend.requests, 2)
}

func TestSlotTakenWithNothingLeftReturnsToDate(t *testing.T) {
	h := newHarness(t)
	h.backend.template = []string{"09:00"}
	const sender = "5491155550008"
	h.driveTo(sender, session.StepConfirmation, "1")
	h.backend.take("loc-1", "st-1", "2025-12-25", "09:00")

	reply := h.send(sender, "Ana Gómez")
	assert.Contains(t, reply, "Elegí otra fecha")
	st, _ := h.state(sender)
	assert.Equal(t, session.StepDate, st.Step)
	assert.Empty(t, st.Date)
	assert.Empty(t, st.AvailableTimes)
}

func TestAnyStaffFallsBackToNextWithTimes(t *testing.T) {
	h := newHarness(t)
	for _, slot := range h.backend.template {
		h.backend.take("loc-1", "st-1", "2025-12-25", slot)
	}
	const sender = "5491155550009"
	h.driveTo(sender, session.StepTime, "5")

	st, _ := h.state(sender)
	assert.Equal(t, "st-2", st.StaffID)
	assert.Equal(t, "Lucía", st.StaffName)
}

func TestSpecificStaffWithoutTimesStaysOnDate(t *testing.T) {
	h := newHarness(t)
	for _, slot := range h.backend.template {
		h.backend.take("loc-1", "st-1", "2025-12-25", slot)
	}
	const sender = "5491155550010"
	h.driveTo(sender, session.StepDate, "1")

	reply := h.send(sender, "25/12/2025")
	assert.Contains(t, reply, "No quedan horarios")
	assert.Equal(t, session.StepDate, h.step(sender))
}

func TestGreetingWithoutTriggerStoresNothing(t *testing.T) {
	h := newHarness(t)
	reply := h.send("5491155550011", "buenas tardes")
	assert.Equal(t, msgWelcomeHint, reply)
	_, ok := h.state("5491155550011")
	assert.False(t, ok)

	reply = h.send("5491155550011", "Quiero un TURNO!")
	assert.Contains(t, reply, "1. Centro")
}

func TestLocationByKeyword(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550012"
	h.send(sender, "hola")
	h.send(sender, "la del norte")
	st, _ := h.state(sender)
	// Norte has no staff, so the menu is repeated.
	assert.Equal(t, session.StepLocation, st.Step)

	h.send(sender, "centro")
	st, _ = h.state(sender)
	assert.Equal(t, session.StepBarber, st.Step)
	assert.Equal(t, "loc-1", st.LocationID)
}

func TestAbandonAndRestart(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550013"
	h.driveTo(sender, session.StepDate, "1")

	assert.Equal(t, msgAbandoned, h.send(sender, "Salir"))
	_, ok := h.state(sender)
	assert.False(t, ok)

	h.driveTo(sender, session.StepTime, "2")
	first, _ := h.state(sender)
	reply := h.send(sender, "menu")
	assert.Contains(t, reply, "1. Centro")
	st, _ := h.state(sender)
	assert.Equal(t, session.StepLocation, st.Step)
	assert.NotEqual(t, first.ConversationID, st.ConversationID)
	assert.Empty(t, st.StaffID)
}

func TestCompletedConversation(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550014"
	h.driveTo(sender, session.StepCompleted, "1")

	assert.Equal(t, msgCompleted, h.send(sender, "hola"))
	assert.Equal(t, msgCompleted, h.send(sender, "1"))

	h.send(sender, "nuevo")
	st, _ := h.state(sender)
	assert.Equal(t, session.StepLocation, st.Step)
	assert.Equal(t, "conv-2", st.ConversationID)
}

func TestCollaboratorErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550015"
	h.send(sender, "hola")
	before, _ := h.state(sender)

	h.backend.staffErr = errors.New("connection refused")
	reply, err := h.engine.Handle(context.Background(), chat.Message{Sender: sender, Text: "1"})
	require.Error(t, err)
	assert.Equal(t, msgGenericError, reply)
	after, _ := h.state(sender)
	assert.Equal(t, before, after)

	h.backend.staffErr = nil
	h.send(sender, "1")
	assert.Equal(t, session.StepBarber, h.step(sender))
}

func TestBookingFailureKeepsConfirmationStep(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550016"
	h.driveTo(sender, session.StepConfirmation, "1")

	h.backend.bookErr = &bookingapi.StatusError{Status: 500}
	reply, err := h.engine.Handle(context.Background(), chat.Message{Sender: sender, Text: "Ana Gómez"})
	require.Error(t, err)
	assert.Equal(t, msgGenericError, reply)
	assert.Equal(t, session.StepConfirmation, h.step(sender))

	h.backend.bookErr = nil
	assert.Contains(t, h.send(sender, "Ana Gómez"), "Turno confirmado")
}

func TestTimeByClockText(t *testing.T) {
	h := newHarness(t)
	const sender = "5491155550017"
	h.driveTo(sender, session.StepTime, "1")
	h.send(sender, "10:00")
	st, _ := h.state(sender)
	assert.Equal(t, session.StepConfirmation, st.Step)
	assert.Equal(t, "10:00", st.Time)
}

func TestStaffPickers(t *testing.T) {
	opts := []session.Option{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Equal(t, "a", FirstMatch{}.Pick("x", opts).ID)

	rr := &RoundRobin{}
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, rr.Pick("x", opts).ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)

	for i := 0; i < 10; i++ {
		assert.True(t, slices.Contains(opts, Random{}.Pick("x", opts)))
	}

	p, err := NewStaffPicker("round-robin")
	require.NoError(t, err)
	assert.IsType(t, &RoundRobin{}, p)
	_, err = NewStaffPicker("least-loaded")
	assert.Error(t, err)
}
