package handlers

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"signalhub/internal/service"
	"signalhub/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes ограничение тела запроса (алерты TradingView - сотни байт)
const maxBodyBytes = 64 << 10

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

var errEmptyBody = errors.New("request body is required")

// respondWithJSON пишет JSON ответ с указанным статусом
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		utils.L().Warn("write json response", utils.Err(err))
	}
}

// respondWithError пишет ErrorResponse
func respondWithError(w http.ResponseWriter, status int, message string, details interface{}) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// decodeJSON читает тело запроса в dst; пустое или битое тело - ошибка для 400
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return unmarshalBody(body, dst)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

func unmarshalBody(body []byte, dst interface{}) error {
	if len(body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, dst)
}

// respondWithServiceError отображает ошибки сервисного слоя в HTTP статусы.
//
// - utils.ValidationErrors / ValidationError: 400 с полями в details
// - ErrInvalidSignalID, ErrSuccessRequired, ErrPnLRequiresProcessed: 400
// - ErrSignalNotFound: 404
// - остальное: 500, текст ошибки в details
func respondWithServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var verrs utils.ValidationErrors
	var verr utils.ValidationError
	switch {
	case errors.As(err, &verrs):
		respondWithError(w, http.StatusBadRequest, "validation failed", verrs)
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, "validation failed", utils.ValidationErrors{verr})
	case errors.Is(err, service.ErrInvalidSignalID),
		errors.Is(err, service.ErrSuccessRequired),
		errors.Is(err, service.ErrPnLRequiresProcessed):
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrSignalNotFound):
		respondWithError(w, http.StatusNotFound, "signal not found", nil)
	default:
		utils.L().Error(message, utils.Err(err), utils.String("path", r.URL.Path))
		respondWithError(w, http.StatusInternalServerError, message, err.Error())
	}
}

// writeNotModified отвечает 304, если If-None-Match совпал с etag
func writeNotModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "max-age=0, must-revalidate")
	if utils.ETagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
