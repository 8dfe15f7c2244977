package memory

import (
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// timelineRepo — реализация TimelineRepository поверх снимка состояния.
type timelineRepo struct {
	u *unitOfWork
}

// Append добавляет событие в таймлайн заказа.
func (r *timelineRepo) Append(event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	st, release := r.u.mutate()
	defer release()

	st.timeline[event.OrderID] = append(st.timeline[event.OrderID], event)
	return nil
}

// List возвращает события заказа в порядке добавления.
func (r *timelineRepo) List(orderID string) ([]domain.TimelineEvent, error) {
	st, release := r.u.view()
	defer release()

	return append([]domain.TimelineEvent(nil), st.timeline[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineRepo)(nil)
