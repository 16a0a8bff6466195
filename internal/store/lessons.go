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
	"studalarm/internal/schedule"
)

// LessonInput is the user-editable part of a custom lesson.
type LessonInput struct {
	Subject      string `json:"subject" validate:"required,max=200"`
	Type         string `json:"type" validate:"max=100"`
	Room         string `json:"room" validate:"max=100"`
	Professor    string `json:"professor" validate:"max=200"`
	DayNumber    int    `json:"dayNumber" validate:"min=1,max=7"`
	LessonNumber int    `json:"lessonNumber" validate:"min=1,max=7"`
	AddressID    string `json:"addressId" validate:"omitempty,max=64"`
}

// CustomLessons is the repository of user-created weekly lessons.
type CustomLessons struct {
	kv    KV
	slots schedule.SlotTable
	now   func() time.Time
}

func NewCustomLessons(kv KV, slots schedule.SlotTable) *CustomLessons {
	if slots == nil {
		slots = schedule.DefaultSlots()
	}
	return &CustomLessons{kv: kv, slots: slots, now: time.Now}
}

// List returns lessons ordered by (day, lesson number).
func (c *CustomLessons) List(ctx context.Context) ([]model.CustomLesson, error) {
	var list []model.CustomLesson
	if _, err := c.kv.Get(ctx, KeyCustomLessons, &list); err != nil {
		return nil, fmt.Errorf("load custom lessons: %w", err)
	}
	if list == nil {
		list = []model.CustomLesson{}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DayNumber != list[j].DayNumber {
			return list[i].DayNumber < list[j].DayNumber
		}
		return list[i].LessonNumber < list[j].LessonNumber
	})
	return list, nil
}

func (c *CustomLessons) apply(dst *model.CustomLesson, in LessonInput) {
	dst.Subject = strings.TrimSpace(in.Subject)
	dst.Type = strings.TrimSpace(in.Type)
	if dst.Type == "" {
		dst.Type = model.UnknownType
	}
	dst.Room = strings.TrimSpace(in.Room)
	if dst.Room == "" {
		dst.Room = model.UnknownRoom
	}
	dst.Professor = strings.TrimSpace(in.Professor)
	if dst.Professor == "" {
		dst.Professor = model.UnknownProfessor
	}
	dst.DayNumber = in.DayNumber
	dst.LessonNumber = in.LessonNumber
	dst.Time = c.slots.Time(in.LessonNumber)
	dst.AddressID = strings.TrimSpace(in.AddressID)
}

func (c *CustomLessons) Add(ctx context.Context, in LessonInput) (model.CustomLesson, error) {
	if err := check(in); err != nil {
		return model.CustomLesson{}, err
	}
	list, err := c.List(ctx)
	if err != nil {
		return model.CustomLesson{}, err
	}
	l := model.CustomLesson{CreatedAt: c.now().UTC()}
	l.ID = "custom-" + uuid.NewString()
	c.apply(&l, in)

	list = append(list, l)
	if err := c.kv.Set(ctx, KeyCustomLessons, list); err != nil {
		return model.CustomLesson{}, fmt.Errorf("save custom lessons: %w", err)
	}
	appLog.Info("custom lesson added", "id", l.ID, "subject", l.Subject, "day", l.DayNumber, "slot", l.LessonNumber)
	return l, nil
}

func (c *CustomLessons) Update(ctx context.Context, id string, in LessonInput) (model.CustomLesson, error) {
	if err := check(in); err != nil {
		return model.CustomLesson{}, err
	}
	list, err := c.List(ctx)
	if err != nil {
		return model.CustomLesson{}, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		c.apply(&list[i], in)
		list[i].UpdatedAt = c.now().UTC()
		if err := c.kv.Set(ctx, KeyCustomLessons, list); err != nil {
			return model.CustomLesson{}, fmt.Errorf("save custom lessons: %w", err)
		}
		return list[i], nil
	}
	return model.CustomLesson{}, ErrNotFound
}

func (c *CustomLessons) Delete(ctx context.Context, id string) error {
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, l := range list {
		if l.ID != id {
			out = append(out, l)
		}
	}
	if len(out) == len(list) {
		return ErrNotFound
	}
	if err := c.kv.Set(ctx, KeyCustomLessons, out); err != nil {
		return fmt.Errorf("save custom lessons: %w", err)
	}
	return nil
}
