package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/yeremiapane/restaurant-reservations/floor"
	"github.com/yeremiapane/restaurant-reservations/models"
	"gorm.io/gorm"
)

// Notifier receives a snapshot of every admitted reservation. Delivery is
// best effort; callers log failures and carry on.
type Notifier interface {
	NotifyReservationCreated(ctx context.Context, reservation models.Reservation) error
}

// NotificationLog persists a notification row for the staff inbox.
type NotificationLog struct {
	DB *gorm.DB
}

func NewNotificationLog(db *gorm.DB) *NotificationLog {
	return &NotificationLog{DB: db}
}

func (n *NotificationLog) NotifyReservationCreated(ctx context.Context, r models.Reservation) error {
	title := "New reservation"
	id := r.ID
	notif := models.Notification{
		Kind:          models.NotificationReservationCreated,
		ReservationID: &id,
		Recipient:     r.CustomerEmail,
		Title:         &title,
		Message: fmt.Sprintf("%s, party of %d on %s at %s, table(s) %v",
			r.CustomerName, r.PartySize, r.Date, r.Time, r.Tables()),
	}
	if err := n.DB.WithContext(ctx).Create(&notif).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// FloorNotifier pushes the reservation to connected floor screens.
type FloorNotifier struct{}

func (FloorNotifier) NotifyReservationCreated(_ context.Context, r models.Reservation) error {
	floor.BroadcastReservationCreate(r)
	return nil
}

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes reservation-created events keyed by reservation code.
type KafkaNotifier struct {
	Writer MessageWriter
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{Writer: writer}
}

type reservationEvent struct {
	Event       string             `json:"event"`
	Reservation models.Reservation `json:"reservation"`
}

func (k *KafkaNotifier) NotifyReservationCreated(ctx context.Context, r models.Reservation) error {
	payload, err := json.Marshal(reservationEvent{Event: models.NotificationReservationCreated, Reservation: r})
	if err != nil {
		return err
	}
	return k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.Code),
		Value: payload,
	})
}

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyReservationCreated(ctx context.Context, r models.Reservation) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyReservationCreated(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
