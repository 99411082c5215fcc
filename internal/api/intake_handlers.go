package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/intake"
)

func validateIntakeHandler(svc *intake.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec intake.Record
		if !decodeRequest(w, r, &rec) {
			return
		}

		normalized, err := svc.Validate(r.Context(), rec)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ValidatedRecordResponse{Record: normalized})
	}
}

func registerPatientHandler(svc *intake.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec intake.Record
		if !decodeRequest(w, r, &rec) {
			return
		}

		reg, err := svc.Register(r.Context(), rec)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, reg)
	}
}

func addressLookupHandler(svc *intake.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddressLookupRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		addr, err := svc.LookupAddress(r.Context(), req.FormID, req.PostalCode)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, addr)
	}
}

// autoFillHandler reports lookup failures in the body, next to the record,
// rather than as an error status.
func autoFillHandler(svc *intake.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoFillRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		rec, failures, err := svc.AutoFill(r.Context(), req.FormID, req.Record)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, AutoFillResponse{Record: rec, Failures: failures})
	}
}
