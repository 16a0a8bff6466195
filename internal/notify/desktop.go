package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"studalarm/internal/alarm"
	appLog "studalarm/internal/log"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
)

// Desktop holds pending alarms as in-process timers and hands them to the
// freedesktop notification daemon on the session bus when they fire.
type Desktop struct {
	appName string

	mu      sync.Mutex
	conn    *dbus.Conn
	pending map[string]*time.Timer
}

func NewDesktop(appName string) *Desktop {
	if appName == "" {
		appName = "studalarm"
	}
	return &Desktop{appName: appName, pending: make(map[string]*time.Timer)}
}

// RequestPermission reports whether a notification daemon is reachable.
// A missing session bus is a denial, not an error.
func (d *Desktop) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			appLog.Warn("session bus unavailable", "err", err)
			return false, nil
		}
		d.conn = conn
	}

	var (
		name, vendor, version, spec string
	)
	obj := d.conn.Object(notificationsService, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsService+".GetServerInformation", 0)
	if err := call.Store(&name, &vendor, &version, &spec); err != nil {
		appLog.Warn("notification daemon unavailable", "err", err)
		return false, nil
	}
	appLog.Info("notification daemon found", "name", name, "vendor", vendor, "version", version)
	return true, nil
}

func (d *Desktop) ScheduleAt(ctx context.Context, fireAt time.Time, p alarm.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle := uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[handle] = time.AfterFunc(time.Until(fireAt), func() {
		d.deliver(handle, p)
	})
	return handle, nil
}

func (d *Desktop) deliver(handle string, p alarm.Payload) {
	d.mu.Lock()
	if _, ok := d.pending[handle]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, handle)
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		appLog.Warn("alarm fired without a session bus", "handle", handle)
		return
	}

	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(byte(2)),
		"category": dbus.MakeVariant("alarm"),
	}
	var id uint32
	obj := conn.Object(notificationsService, notificationsPath)
	err := obj.Call(notificationsService+".Notify", 0,
		d.appName, uint32(0), "alarm-symbolic", p.Title, p.Body, []string{}, hints, int32(0),
	).Store(&id)
	if err != nil {
		appLog.Error("deliver notification failed", fmt.Errorf("notify: %w", err), "handle", handle)
		return
	}
	appLog.Info("alarm delivered", "handle", handle, "notification_id", id)
}

func (d *Desktop) Cancel(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[handle]; ok {
		t.Stop()
		delete(d.pending, handle)
	}
	return nil
}

func (d *Desktop) ListPending(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.pending))
	for h := range d.pending {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

// Close stops all timers and releases the bus connection.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, t := range d.pending {
		t.Stop()
		delete(d.pending, h)
	}
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
