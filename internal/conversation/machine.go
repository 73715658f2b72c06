package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/patient"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

const (
	offerWindow = 14 * 24 * time.Hour
	maxOffers   = 5
)

// Reply is what the machine hands back to the chat surface after a turn.
type Reply struct {
	SessionID   uuid.UUID
	Stage       Stage
	Prompt      string
	Offered     []slot.Slot
	Appointment *booking.Appointment
}

// Machine sequences the multi-turn intake: greeting, identity, specialty,
// slot selection, insurance, confirmation. Each session's collected fields
// accumulate until the booking commits or the session is abandoned.
type Machine struct {
	sessions    *Store
	slots       *slot.Manager
	coordinator *booking.Coordinator
	patients    patient.Store
	classifier  patient.Classifier
	idleTimeout time.Duration
	clinicName  string
	logger      zerolog.Logger
}

func NewMachine(
	sessions *Store,
	slots *slot.Manager,
	coordinator *booking.Coordinator,
	patients patient.Store,
	classifier patient.Classifier,
	idleTimeout time.Duration,
	clinicName string,
	logger zerolog.Logger,
) *Machine {
	return &Machine{
		sessions:    sessions,
		slots:       slots,
		coordinator: coordinator,
		patients:    patients,
		classifier:  classifier,
		idleTimeout: idleTimeout,
		clinicName:  clinicName,
		logger:      logger,
	}
}

// StartSession opens a conversation and returns the greeting.
func (m *Machine) StartSession(ctx context.Context) Reply {
	sess := m.sessions.Create(time.Now())

	return Reply{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Prompt: fmt.Sprintf(
			"Welcome to %s! I can help you book an appointment. To get started, please share your full name, date of birth (YYYY-MM-DD), and an email or phone number.",
			m.clinicName,
		),
	}
}

// Accept routes one structured input turn to the session's current stage.
func (m *Machine) Accept(ctx context.Context, sessionID uuid.UUID, in Intake) (Reply, error) {
	var reply Reply

	err := m.sessions.With(ctx, sessionID, func(sess *Session) error {
		if sess.Stage.Terminal() {
			return ErrSessionTerminal
		}

		sess.LastActivityAt = time.Now()

		if in.Cancel != nil && *in.Cancel {
			m.abandon(ctx, sess)
			reply = Reply{
				SessionID: sess.ID,
				Stage:     sess.Stage,
				Prompt:    "No problem, I've cancelled this booking request. Reach out any time.",
			}
			return nil
		}

		var err error
		switch sess.Stage {
		case StageGreeting, StageIdentity:
			reply, err = m.acceptIdentity(ctx, sess, in)
		case StageSpecialty:
			reply, err = m.acceptSpecialty(ctx, sess, in)
		case StageSlot:
			reply, err = m.acceptSlot(ctx, sess, in)
		case StageInsurance:
			reply, err = m.acceptInsurance(ctx, sess, in)
		case StageConfirm:
			reply, err = m.acceptConfirm(ctx, sess, in)
		default:
			err = fmt.Errorf("unexpected stage %s", sess.Stage)
		}
		return err
	})
	if err != nil {
		return Reply{}, err
	}

	if reply.Stage.Terminal() {
		m.sessions.Remove(sessionID)
	}

	return reply, nil
}

func (m *Machine) acceptIdentity(ctx context.Context, sess *Session, in Intake) (Reply, error) {
	// The first turn ends the greeting whether or not it answers anything.
	sess.Stage = StageIdentity

	f := &sess.Fields

	if in.Name != nil {
		first, last, ok := splitName(*in.Name)
		if !ok {
			return m.reprompt(sess, "I need both a first and last name. Could you share your full name?"), nil
		}
		f.FirstName, f.LastName = first, last
	}

	if in.DateOfBirth != nil {
		dob, ok := parseDOB(*in.DateOfBirth)
		if !ok {
			return m.reprompt(sess, "I couldn't read that date of birth. Please use YYYY-MM-DD, for example 1990-01-01."), nil
		}
		f.DateOfBirth = dob
	}

	if in.Contact != nil {
		contact := strings.TrimSpace(*in.Contact)
		if isEmail(contact) {
			f.Email = &contact
		} else {
			f.Phone = &contact
		}
	}

	var missing []string
	if f.FirstName == "" || f.LastName == "" {
		missing = append(missing, "your full name")
	}
	if f.DateOfBirth.IsZero() {
		missing = append(missing, "your date of birth")
	}
	if f.Email == nil && f.Phone == nil {
		missing = append(missing, "an email or phone number")
	}
	if len(missing) > 0 {
		return m.reprompt(sess, "Thanks! I still need "+strings.Join(missing, " and ")+"."), nil
	}

	match, err := m.patients.Lookup(ctx, f.FirstName, f.LastName, f.DateOfBirth)
	if err != nil && !errors.Is(err, patient.ErrPatientNotFound) {
		return Reply{}, fmt.Errorf("patient lookup: %w", err)
	}

	cls := m.classifier.Classify(match)
	f.Category = cls.Category
	f.Duration = cls.Duration

	sess.Stage = StageSpecialty

	greeting := fmt.Sprintf("Nice to meet you, %s! Since this is your first visit, we'll set aside %d minutes.", f.FirstName, int(cls.Duration.Minutes()))
	if cls.Category == patient.CategoryReturning {
		greeting = fmt.Sprintf("Welcome back, %s! We'll set aside %d minutes for your visit.", f.FirstName, int(cls.Duration.Minutes()))
	}

	return Reply{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Prompt:    greeting + " What kind of specialist would you like to see, or is there a particular doctor you have in mind?",
	}, nil
}

func (m *Machine) acceptSpecialty(ctx context.Context, sess *Session, in Intake) (Reply, error) {
	f := &sess.Fields

	if in.RequestedSpecialty != nil {
		f.Specialty = strings.TrimSpace(*in.RequestedSpecialty)
	}
	if in.RequestedDoctor != nil {
		f.Doctor = strings.TrimSpace(*in.RequestedDoctor)
	}

	if f.Specialty == "" && f.Doctor == "" {
		return m.reprompt(sess, "Which specialty or doctor should I look for? For example, an allergist."), nil
	}

	return m.offerSlots(ctx, sess, "")
}

func (m *Machine) acceptSlot(ctx context.Context, sess *Session, in Intake) (Reply, error) {
	if in.SlotChoice == nil {
		return m.offerSlots(ctx, sess, "")
	}

	choice := *in.SlotChoice
	if choice < 1 || choice > len(sess.Offered) {
		return m.offerSlots(ctx, sess, fmt.Sprintf("I don't have an option %d. ", choice))
	}

	chosen := sess.Offered[choice-1]

	// A session holds at most one slot. Give back the previous hold before
	// taking a new one, or a booking bounce that re-enters selection would
	// strand the first slot held until the TTL sweep.
	if sess.Hold != nil {
		if err := m.slots.Release(ctx, *sess.Hold); err != nil && !errors.Is(err, slot.ErrHoldNotFound) {
			m.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("hold release failed on re-pick")
		}
		sess.Hold = nil
		sess.HeldSlot = nil
	}

	hold, err := m.slots.Reserve(ctx, chosen.ID, sess.Fields.Duration)
	if err != nil {
		if errors.Is(err, slot.ErrSlotUnavailable) || errors.Is(err, slot.ErrSlotNotFound) {
			// Lost the race; never substitute silently, re-offer instead.
			return m.offerSlots(ctx, sess, "I'm sorry, that time was just taken. ")
		}
		return Reply{}, err
	}

	sess.Hold = &hold
	sess.HeldSlot = &chosen
	sess.Stage = StageInsurance

	return Reply{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Prompt: fmt.Sprintf(
			"Great, I'm holding %s with %s for you. Now I need your insurance details: carrier and member ID (and group number if you have one).",
			chosen.StartTime.Format("Monday, January 2 at 3:04 PM"), chosen.DoctorName,
		),
	}, nil
}

func (m *Machine) acceptInsurance(ctx context.Context, sess *Session, in Intake) (Reply, error) {
	f := &sess.Fields

	if f.Insurance == nil {
		f.Insurance = &patient.Insurance{}
	}
	if in.InsuranceCarrier != nil {
		f.Insurance.Carrier = strings.TrimSpace(*in.InsuranceCarrier)
	}
	if in.InsuranceMemberID != nil {
		f.Insurance.MemberID = strings.TrimSpace(*in.InsuranceMemberID)
	}
	if in.InsuranceGroupID != nil {
		f.Insurance.GroupID = strings.TrimSpace(*in.InsuranceGroupID)
	}

	if f.Insurance.Carrier == "" || f.Insurance.MemberID == "" {
		return m.reprompt(sess, "I still need your insurance carrier and member ID."), nil
	}

	sess.Stage = StageConfirm
	return Reply{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Prompt:    m.summary(sess) + " Shall I confirm this appointment?",
	}, nil
}

func (m *Machine) acceptConfirm(ctx context.Context, sess *Session, in Intake) (Reply, error) {
	if in.Confirm == nil {
		return m.reprompt(sess, m.summary(sess)+" Please confirm to book, or cancel."), nil
	}

	if !*in.Confirm {
		m.abandon(ctx, sess)
		return Reply{
			SessionID: sess.ID,
			Stage:     sess.Stage,
			Prompt:    "Understood, I won't book it. The time has been released.",
		}, nil
	}

	f := sess.Fields
	req := booking.Request{
		Identity: booking.Identity{
			FirstName:   f.FirstName,
			LastName:    f.LastName,
			DateOfBirth: f.DateOfBirth,
			Email:       f.Email,
			Phone:       f.Phone,
		},
		Insurance: f.Insurance,
	}
	if sess.Hold != nil {
		req.SlotID = sess.Hold.SlotID
		req.Hold = sess.Hold
	}

	appt, err := m.coordinator.Book(ctx, req)
	if err != nil {
		return m.recoverBooking(ctx, sess, err)
	}

	sess.Stage = StageConfirmed
	sess.Hold = nil

	return Reply{
		SessionID:   sess.ID,
		Stage:       sess.Stage,
		Appointment: appt,
		Prompt: fmt.Sprintf(
			"You're all set! Your %d-minute appointment with %s is confirmed for %s. We'll send reminders as the date approaches.",
			int(appt.Duration.Minutes()), appt.DoctorName, appt.StartTime.Format("Monday, January 2 at 3:04 PM"),
		),
	}, nil
}

// recoverBooking maps a coordinator failure back to the stage that can fix
// it. Collected fields survive; only the failed step is retried.
func (m *Machine) recoverBooking(ctx context.Context, sess *Session, err error) (Reply, error) {
	var vErr *booking.ValidationError
	if errors.As(err, &vErr) {
		switch vErr.Field {
		case "insurance":
			sess.Stage = StageInsurance
		case "slot":
			sess.Hold = nil
			sess.HeldSlot = nil
			return m.offerSlots(ctx, sess, "")
		default:
			sess.Stage = StageIdentity
		}
		return m.reprompt(sess, "I need to double-check something: "+vErr.Reason+"."), nil
	}

	if errors.Is(err, slot.ErrSlotUnavailable) {
		// The hold lapsed or the slot was lost; back to selection.
		sess.Hold = nil
		sess.HeldSlot = nil
		return m.offerSlots(ctx, sess, "I'm sorry, we lost that time while finishing up. ")
	}

	var pErr *booking.PersistenceError
	if errors.As(err, &pErr) {
		m.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("booking failed")
		sess.Hold = nil
		sess.HeldSlot = nil
		return m.offerSlots(ctx, sess, "I'm sorry, something went wrong on our side saving the booking. Let's pick a time again. ")
	}

	return Reply{}, err
}

// offerSlots queries availability for the session's specialty and presents
// candidates earliest first.
func (m *Machine) offerSlots(ctx context.Context, sess *Session, preamble string) (Reply, error) {
	f := sess.Fields

	filter := slot.Filter{
		From:        time.Now(),
		To:          time.Now().Add(offerWindow),
		MinDuration: f.Duration,
	}
	if f.Specialty != "" {
		spec := f.Specialty
		filter.Specialty = &spec
	}

	candidates, err := m.slots.FindSlots(ctx, filter)
	if err != nil {
		return Reply{}, err
	}

	if f.Doctor != "" {
		var filtered []slot.Slot
		for _, c := range candidates {
			if strings.EqualFold(c.DoctorName, f.Doctor) {
				filtered = append(filtered, c)
			}
		}
		// Fall back to the specialty-wide list rather than a dead end.
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	if len(candidates) == 0 {
		sess.Stage = StageSpecialty
		sess.Offered = nil
		return Reply{
			SessionID: sess.ID,
			Stage:     sess.Stage,
			Prompt:    preamble + "I couldn't find any openings for that in the next two weeks. Would you like to try a different specialty or doctor?",
		}, nil
	}

	if len(candidates) > maxOffers {
		candidates = candidates[:maxOffers]
	}

	sess.Stage = StageSlot
	sess.Offered = candidates

	var b strings.Builder
	b.WriteString(preamble + "Here are the earliest available times:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d) %s - %s (%s)\n", i+1, c.StartTime.Format("Monday, January 2 at 3:04 PM"), c.DoctorName, c.LocationName)
	}
	b.WriteString("Which number works for you?")

	return Reply{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Prompt:    b.String(),
		Offered:   candidates,
	}, nil
}

func (m *Machine) reprompt(sess *Session, prompt string) Reply {
	return Reply{SessionID: sess.ID, Stage: sess.Stage, Prompt: prompt}
}

func (m *Machine) summary(sess *Session) string {
	f := sess.Fields
	when := "your selected time"
	doctor := "your doctor"
	if sess.HeldSlot != nil {
		when = sess.HeldSlot.StartTime.Format("Monday, January 2 at 3:04 PM")
		doctor = sess.HeldSlot.DoctorName
	}
	return fmt.Sprintf(
		"To recap: %s %s, %d-minute appointment with %s on %s, insured with %s.",
		f.FirstName, f.LastName, int(f.Duration.Minutes()), doctor, when, f.Insurance.Carrier,
	)
}

// abandon ends the session and gives back its hold. Safe to call once per
// session; the hold pointer is cleared so a racing sweep cannot release twice.
func (m *Machine) abandon(ctx context.Context, sess *Session) {
	if sess.Hold != nil {
		if err := m.slots.Release(ctx, *sess.Hold); err != nil && !errors.Is(err, slot.ErrHoldNotFound) {
			m.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("hold release failed on abandon")
		}
		sess.Hold = nil
		sess.HeldSlot = nil
	}
	sess.Stage = StageAbandoned
}

// AbandonIdle sweeps sessions idle past the configured window, releasing any
// outstanding hold exactly once. Abandoning never touches a committed
// appointment.
func (m *Machine) AbandonIdle(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.idleTimeout)

	count := 0
	for _, id := range m.sessions.FindIdle(cutoff) {
		abandoned := false
		err := m.sessions.With(ctx, id, func(sess *Session) error {
			// Re-check under the session lock; a turn may have just landed.
			if sess.Stage.Terminal() || !sess.LastActivityAt.Before(cutoff) {
				return nil
			}
			m.abandon(ctx, sess)
			abandoned = true
			count++
			return nil
		})
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return count, err
		}
		if abandoned {
			m.sessions.Remove(id)
		}
	}

	if count > 0 {
		m.logger.Info().Int("count", count).Msg("idle sessions abandoned")
	}

	return count, nil
}
