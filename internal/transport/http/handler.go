package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/asquebay/canteen-orders/internal/model"
	"github.com/asquebay/canteen-orders/internal/notify"
)

// OrderStore определяет операции хранилища, которые нужны API
// это позволяет хэндлеру не зависеть от конкретной реализации сервиса
type OrderStore interface {
	AddOrder(ctx context.Context, draft model.OrderDraft) (model.OrderID, error)
	UpdateOrderStatus(ctx context.Context, id model.OrderID, status model.Status) error
	DeleteOrder(ctx context.Context, id model.OrderID) error
	GetOrderByID(id model.OrderID) (model.Order, bool)
	Orders() []model.Order
	OrdersByStatus(status model.Status) []model.Order
}

// Notifications — показанные уведомления о готовых заказах
type Notifications interface {
	Active() []notify.Notification
	Activate(tag string) error
}

// Handler обрабатывает HTTP-запросы
type Handler struct {
	store         OrderStore
	notifications Notifications
	hub           *Hub
	log           *slog.Logger
	router        *mux.Router
}

// NewHandler создает новый экземпляр Handler
func NewHandler(store OrderStore, notifications Notifications, hub *Hub, log *slog.Logger) *Handler {
	h := &Handler{
		store:         store,
		notifications: notifications,
		hub:           hub,
		log:           log,
		router:        mux.NewRouter(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP делает Handler совместимым с http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// registerRoutes регистрирует все эндпоинты
func (h *Handler) registerRoutes() {
	// websocket живёт вне логирующего middleware, его соединение долгое
	h.router.HandleFunc("/api/ws", h.hub.ServeWS).Methods(http.MethodGet)

	api := h.router.PathPrefix("/api").Subrouter()
	api.Use(h.logRequests)

	api.HandleFunc("/menu", h.getMenu).Methods(http.MethodGet)

	// сторона студента: оформить заказ и следить за ним
	api.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id:[0-9]+}", h.getOrder).Methods(http.MethodGet)

	// сторона столовой: продвигать и удалять заказы
	api.HandleFunc("/orders/{id:[0-9]+}/status", h.updateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id:[0-9]+}", h.deleteOrder).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{tag}/activate", h.activateNotification).Methods(http.MethodPost)
}

func (h *Handler) getMenu(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, model.Menu())
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		h.respondJSON(w, http.StatusOK, h.store.OrdersByStatus(model.Status(status)))
		return
	}
	h.respondJSON(w, http.StatusOK, h.store.Orders())
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, found := h.store.GetOrderByID(id)
	if !found {
		h.respondError(w, http.StatusNotFound, "order not found")
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// createOrderRequest — тело запроса на оформление заказа
// если сумма не передана, она считается по меню
type createOrderRequest struct {
	StudentName string           `json:"studentName"`
	StudentID   string           `json:"studentId"`
	Items       []model.LineItem `json:"items"`
	Total       *decimal.Decimal `json:"total"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft := model.OrderDraft{
		StudentName: req.StudentName,
		StudentID:   req.StudentID,
		Items:       req.Items,
	}
	if req.Total != nil {
		draft.Total = *req.Total
	} else {
		total, err := model.PriceItems(req.Items)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		draft.Total = total
	}

	id, err := h.store.AddOrder(r.Context(), draft)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	order, _ := h.store.GetOrderByID(id)
	h.respondJSON(w, http.StatusCreated, order)
}

type updateStatusRequest struct {
	Status model.Status `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		h.respondServiceError(w, err)
		return
	}

	order, _ := h.store.GetOrderByID(id)
	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteOrder(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listNotifications(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.notifications.Active())
}

func (h *Handler) activateNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Activate(mux.Vars(r)["tag"]); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// orderID извлекает id из URL; маршрут уже гарантирует, что это цифры
func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (model.OrderID, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return model.OrderID(id), true
}

// respondServiceError переводит доменную ошибку в HTTP-статус
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidTransition):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrRejected):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrTransport):
		h.log.Error("storage unavailable", slog.String("error", err.Error()))
		h.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.log.Error("internal server error", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
