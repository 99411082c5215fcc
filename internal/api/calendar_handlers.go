package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
)

func calendarHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := parseFilter(w, r)
		if !ok {
			return
		}

		events, err := svc.Calendar(r.Context(), filter)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if events == nil {
			events = []appointment.CalendarEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// draftHandler opens the appointment form: from a clicked slot for a new
// appointment, or from a stored appointment when appointment_id is set.
func draftHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DraftRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		var start time.Time
		if req.Start != "" {
			var err error
			start, err = time.Parse(time.RFC3339, req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
				return
			}
		}

		var draft appointment.Draft
		if req.AppointmentID != "" {
			appt, err := svc.GetAppointment(r.Context(), uuid.MustParse(req.AppointmentID))
			if err != nil {
				handleServiceError(w, r, logger, err)
				return
			}
			draft = appointment.DraftFromAppointment(*appt)
			if !start.IsZero() {
				moved := svc.DraftFromSlot(start)
				draft.Date, draft.Time = moved.Date, moved.Time
			}
		} else {
			draft = svc.DraftFromSlot(start)
		}

		if req.Procedure != "" {
			if err := draft.SetProcedure(req.Procedure); err != nil {
				handleServiceError(w, r, logger, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func resetColorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.ResetColors()
		w.WriteHeader(http.StatusNoContent)
	}
}

func proceduresHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, appointment.Procedures())
}
