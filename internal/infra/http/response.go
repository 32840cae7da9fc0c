package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusFor сопоставляет вид доменной ошибки HTTP-статусу.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindUnsupportedAirport:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConstraintViolation:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// WriteJSON отправляет JSON-ответ.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteDomainError выбирает статус по виду ошибки. Текст неклассифицированных ошибок не раскрывается.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	var de *domain.Error
	if !errors.As(err, &de) {
		WriteError(w, status, errors.New("internal error"))
		return
	}
	WriteError(w, status, de)
}

// DecodeJSON читает тело запроса в v.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.ValidationError("invalid JSON body", err)
	}
	return nil
}
