package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "studalarm/internal/log"
	"studalarm/internal/model"
)

// ReminderInput is the user-editable part of a reminder.
type ReminderInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Date        string `json:"date" validate:"required,datetime=02.01.2006"`
	Time        string `json:"time" validate:"required,datetime=15:04"`
	AddressID   string `json:"addressId" validate:"omitempty,max=64"`
}

func (in *ReminderInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.AddressID = strings.TrimSpace(in.AddressID)
}

// Reminders is the repository of one-off user events.
type Reminders struct {
	kv  KV
	now func() time.Time
}

func NewReminders(kv KV) *Reminders {
	return &Reminders{kv: kv, now: time.Now}
}

// List returns reminders ordered by their moment; unparsable ones last.
func (r *Reminders) List(ctx context.Context) ([]model.Reminder, error) {
	var list []model.Reminder
	if _, err := r.kv.Get(ctx, KeyReminders, &list); err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if list == nil {
		list = []model.Reminder{}
	}
	loc := r.now().Location()
	sort.SliceStable(list, func(i, j int) bool {
		a, aok := list[i].At(loc)
		b, bok := list[j].At(loc)
		if aok != bok {
			return aok
		}
		return a.Before(b)
	})
	return list, nil
}

func (r *Reminders) Add(ctx context.Context, in ReminderInput) (model.Reminder, error) {
	in.trim()
	if err := check(in); err != nil {
		return model.Reminder{}, err
	}
	list, err := r.List(ctx)
	if err != nil {
		return model.Reminder{}, err
	}
	rem := model.Reminder{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		Time:        in.Time,
		AddressID:   in.AddressID,
		CreatedAt:   r.now().UTC(),
	}
	list = append(list, rem)
	if err := r.kv.Set(ctx, KeyReminders, list); err != nil {
		return model.Reminder{}, fmt.Errorf("save reminders: %w", err)
	}
	appLog.Info("reminder added", "id", rem.ID, "title", rem.Title)
	return rem, nil
}

func (r *Reminders) Update(ctx context.Context, id string, in ReminderInput) (model.Reminder, error) {
	in.trim()
	if err := check(in); err != nil {
		return model.Reminder{}, err
	}
	list, err := r.List(ctx)
	if err != nil {
		return model.Reminder{}, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		list[i].Title = in.Title
		list[i].Description = in.Description
		list[i].Date = in.Date
		list[i].Time = in.Time
		list[i].AddressID = in.AddressID
		list[i].UpdatedAt = r.now().UTC()
		if err := r.kv.Set(ctx, KeyReminders, list); err != nil {
			return model.Reminder{}, fmt.Errorf("save reminders: %w", err)
		}
		return list[i], nil
	}
	return model.Reminder{}, ErrNotFound
}

func (r *Reminders) Delete(ctx context.Context, id string) error {
	list, err := r.List(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, rem := range list {
		if rem.ID != id {
			out = append(out, rem)
		}
	}
	if len(out) == len(list) {
		return ErrNotFound
	}
	if err := r.kv.Set(ctx, KeyReminders, out); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}
