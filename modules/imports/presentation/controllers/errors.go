package controllers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/httpapi"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, serrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, importjob.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, importjob.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrLoadFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := composables.UseLogger(r.Context()).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("import request failed")
	} else {
		log.WithField("status", status).Info("import request rejected")
	}
	if werr := httpapi.WriteError(w, status, serrors.CodeOf(err, "INTERNAL_SERVER_ERROR"), err.Error(), nil); werr != nil {
		log.WithFields(logrus.Fields{"write_error": werr}).Warn("failed to write error response")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	if err := httpapi.WriteJSON(w, http.StatusOK, payload); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("failed to write response")
	}
}
