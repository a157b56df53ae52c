// handlers реализует REST-эндпоинты auth-сервиса.
// Здесь выполняется только декодирование запросов и маппинг данных/ошибок
// доменного слоя (service) в HTTP. Вся бизнес-логика — в пакете service.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/habitflow/auth-service/internal/service"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	svc *service.Service
}

func New(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
