package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
)

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseFilter reads professional_id, patient_id, from, to and
// include_cancelled from the query string.
func parseFilter(w http.ResponseWriter, r *http.Request) (appointment.Filter, bool) {
	q := r.URL.Query()
	var f appointment.Filter

	for name, dst := range map[string]**uuid.UUID{
		"professional_id": &f.ProfessionalID,
		"patient_id":      &f.PatientID,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
			return f, false
		}
		*dst = &id
	}

	for name, dst := range map[string]*string{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		if _, err := time.Parse(appointment.DateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be YYYY-MM-DD")
			return f, false
		}
		*dst = raw
	}

	if raw := q.Get("include_cancelled"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_include_cancelled", "include_cancelled must be a boolean")
			return f, false
		}
		f.IncludeCancelled = include
	}
	return f, true
}

func createAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		draft := appointment.Draft{
			ProfessionalID:  uuid.MustParse(req.ProfessionalID),
			PatientID:       uuid.MustParse(req.PatientID),
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: req.DurationMinutes,
			Procedure:       req.Procedure,
			Notes:           req.Notes,
		}

		appt, err := svc.CreateAppointment(r.Context(), draft.CreateInput())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, svc.Location()))
	}
}

func listAppointmentsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := parseFilter(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i], svc.Location()))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func updateAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req UpdateAppointmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, appointment.UpdateInput{
			Procedure:       req.Procedure,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

// transitionHandler serves begin, finish and cancel.
func transitionHandler(svc *appointment.Service, logger *zap.Logger, action appointment.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var (
			appt *appointment.Appointment
			err  error
		)
		switch action {
		case appointment.ActionBegin:
			appt, err = svc.BeginAppointment(r.Context(), id)
		case appointment.ActionFinish:
			appt, err = svc.FinishAppointment(r.Context(), id)
		default:
			appt, err = svc.CancelAppointment(r.Context(), id, ActorFromContext(r.Context()))
		}
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), id, appointment.RescheduleInput{
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: req.DurationMinutes,
		}, ActorFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func appointmentActionsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		summary, err := svc.Actions(r.Context(), id, ActorFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if summary.Allowed == nil {
			summary.Allowed = []appointment.Action{}
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func listProfessionalsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profs, err := svc.ListProfessionals(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		resp := make([]ProfessionalResponse, 0, len(profs))
		for _, p := range profs {
			resp = append(resp, ProfessionalResponse{
				ID:        p.ID,
				Name:      p.Name,
				Specialty: p.Specialty,
				Color:     svc.ProfessionalColor(p.ID),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.ListPatients(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		resp := make([]PatientResponse, 0, len(patients))
		for _, p := range patients {
			resp = append(resp, PatientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
