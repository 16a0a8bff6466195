package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studalarm/internal/model"
)

var predefinedCampuses = []model.Address{
	{ID: "bs", Code: "БС", Name: "Большая Семёновская", Address: "ул. Б. Семёновская, д. 38", Type: model.AddressCampus},
	{ID: "pk", Code: "ПК", Name: "Павла Корчагина", Address: "ул. Павла Корчагина, д. 22", Type: model.AddressCampus},
	{ID: "pr", Code: "ПР", Name: "Прянишникова", Address: "ул. Прянишникова, 2А", Type: model.AddressCampus},
	{ID: "av", Code: "АВ", Name: "Автозаводская", Address: "ул. Автозаводская, д. 16", Type: model.AddressCampus},
	{ID: "m", Code: "М", Name: "Михалковская", Address: "ул. Михалковская, д. 7", Type: model.AddressCampus},
}

var predefinedDorms = []model.Address{
	{ID: "dorm1", Code: "№1", Name: "Общежитие №1", Address: "ул. Малая Семёновская, д. 12", Type: model.AddressDorm},
	{ID: "dorm2", Code: "№2", Name: "Общежитие №2", Address: "ул. 7-я Парковая, д. 9/26", Type: model.AddressDorm},
	{ID: "dorm3", Code: "№3", Name: "Общежитие №3", Address: "ул. 1-я Дубровская, д. 16А, стр. 2", Type: model.AddressDorm},
	{ID: "dorm4", Code: "№4", Name: "Общежитие №4", Address: "ул. 800-летия Москвы, д. 28", Type: model.AddressDorm},
	{ID: "dorm5", Code: "№5", Name: "Общежитие №5", Address: "ул. Михалковская, д. 7, корп. 3", Type: model.AddressDorm},
	{ID: "dorm6", Code: "№6", Name: "Общежитие №6", Address: "ул. Б. Галушкина, д. 9", Type: model.AddressDorm},
	{ID: "dorm7", Code: "№7", Name: "Общежитие №7", Address: "ул. Павла Корчагина, д. 20А, к. 3", Type: model.AddressDorm},
	{ID: "dorm8", Code: "№8", Name: "Общежитие №8", Address: "Рижский проезд, д. 15, к. 2", Type: model.AddressDorm},
	{ID: "dorm9", Code: "№9", Name: "Общежитие №9", Address: "Рижский проезд, д. 15, к. 1", Type: model.AddressDorm},
	{ID: "dorm10", Code: "№10", Name: "Общежитие №10", Address: "1-й Балтийский переулок, д. 6/21 корп. 3", Type: model.AddressDorm},
	{ID: "dorm11", Code: "№11", Name: "Общежитие №11", Address: "ул. Павла Корчагина, д. 22А, к. 2", Type: model.AddressDorm},
}

// AddressInput describes a new custom address.
type AddressInput struct {
	Name    string `json:"name" validate:"required,max=120"`
	Address string `json:"address" validate:"required,max=300"`
}

// AddressBook groups the built-in and user addresses.
type AddressBook struct {
	Campuses []model.Address `json:"campuses"`
	Dorms    []model.Address `json:"dorms"`
	Custom   []model.Address `json:"custom"`
}

// All flattens the book: campuses, dorms, then custom.
func (b AddressBook) All() []model.Address {
	out := make([]model.Address, 0, len(b.Campuses)+len(b.Dorms)+len(b.Custom))
	out = append(out, b.Campuses...)
	out = append(out, b.Dorms...)
	return append(out, b.Custom...)
}

type Addresses struct {
	kv  KV
	now func() time.Time
}

func NewAddresses(kv KV) *Addresses {
	return &Addresses{kv: kv, now: time.Now}
}

func (a *Addresses) custom(ctx context.Context) ([]model.Address, error) {
	var list []model.Address
	if _, err := a.kv.Get(ctx, KeyAddresses, &list); err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	if list == nil {
		list = []model.Address{}
	}
	return list, nil
}

func (a *Addresses) Book(ctx context.Context) (AddressBook, error) {
	custom, err := a.custom(ctx)
	if err != nil {
		return AddressBook{}, err
	}
	return AddressBook{
		Campuses: append([]model.Address(nil), predefinedCampuses...),
		Dorms:    append([]model.Address(nil), predefinedDorms...),
		Custom:   custom,
	}, nil
}

// Lookup finds an address by id across the whole book.
func (a *Addresses) Lookup(ctx context.Context, id string) (model.Address, error) {
	book, err := a.Book(ctx)
	if err != nil {
		return model.Address{}, err
	}
	for _, addr := range book.All() {
		if addr.ID == id {
			return addr, nil
		}
	}
	return model.Address{}, ErrNotFound
}

func (a *Addresses) Add(ctx context.Context, in AddressInput) (model.Address, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if err := check(in); err != nil {
		return model.Address{}, err
	}
	list, err := a.custom(ctx)
	if err != nil {
		return model.Address{}, err
	}
	created := a.now().UTC()
	addr := model.Address{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Address:   in.Address,
		Type:      model.AddressCustom,
		CreatedAt: &created,
	}
	list = append(list, addr)
	if err := a.kv.Set(ctx, KeyAddresses, list); err != nil {
		return model.Address{}, fmt.Errorf("save addresses: %w", err)
	}
	return addr, nil
}

// Delete removes a custom address. Built-in addresses cannot be deleted.
func (a *Addresses) Delete(ctx context.Context, id string) error {
	list, err := a.custom(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, addr := range list {
		if addr.ID != id {
			out = append(out, addr)
		}
	}
	if len(out) == len(list) {
		return ErrNotFound
	}
	if err := a.kv.Set(ctx, KeyAddresses, out); err != nil {
		return fmt.Errorf("save addresses: %w", err)
	}
	return nil
}
