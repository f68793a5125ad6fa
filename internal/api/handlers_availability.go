package api

import (
	"net/http"
	"strconv"
	"time"
)

func publicAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workerID, err := strconv.ParseInt(r.URL.Query().Get("health_worker_id"), 10, 64)
		if err != nil || workerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "health_worker_id query parameter is required")
			return
		}

		out, err := svc.PublicAvailability(r.Context(), workerID)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, out)
	}
}

func monthAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workerID, err := strconv.ParseInt(r.URL.Query().Get("health_worker_id"), 10, 64)
		if err != nil || workerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "health_worker_id query parameter is required")
			return
		}

		year, err := strconv.Atoi(r.URL.Query().Get("year"))
		if err != nil || year < 2000 || year > 2100 {
			writeError(w, r, http.StatusBadRequest, "year query parameter is required")
			return
		}
		monthNum, err := strconv.Atoi(r.URL.Query().Get("month"))
		if err != nil || monthNum < 1 || monthNum > 12 {
			writeError(w, r, http.StatusBadRequest, "month must be between 1 and 12")
			return
		}

		days, err := svc.MonthAvailability(r.Context(), workerID, year, time.Month(monthNum))
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, toDayResponses(days))
	}
}

func freeSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workerID, err := strconv.ParseInt(r.URL.Query().Get("health_worker_id"), 10, 64)
		if err != nil || workerID <= 0 {
			writeError(w, r, http.StatusBadRequest, "health_worker_id query parameter is required")
			return
		}

		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.FreeSlots(r.Context(), workerID, date)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeData(w, r, http.StatusOK, slots)
	}
}
