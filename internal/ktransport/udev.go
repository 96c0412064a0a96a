package ktransport

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// DeviceEvent reports a tty device attaching or detaching, for the serial
// TNC's "wait for it to appear" polling the teacher implements with a
// stat-in-a-loop (kissserial_get's polling branch, src/kissserial.go);
// here it's event-driven instead of polled.
type DeviceEvent struct {
	Action string // "add" or "remove"
	Path   string // e.g. "/dev/ttyUSB0"
}

// ListSerialDevices enumerates tty devices presently attached that look
// like a USB-serial TNC (ttyUSB*/ttyACM*), the event-driven equivalent of
// the teacher's reliance on a fixed configured device path.
func ListSerialDevices() ([]string, error) {
	u := udev.Udev{}
	enum := u.NewEnumerate()
	if err := enum.AddMatchSubsystem("tty"); err != nil {
		return nil, err
	}
	devices, err := enum.Devices()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, d := range devices {
		node := d.Devnode()
		if isCandidateTTY(node) {
			out = append(out, node)
		}
	}
	return out, nil
}

// WatchSerialDevices streams add/remove events for candidate serial-TNC
// devices until ctx is cancelled, so a station can open the serial
// transport the moment a USB TNC is plugged in rather than polling for it.
func WatchSerialDevices(ctx context.Context, logger *log.Logger) (<-chan DeviceEvent, error) {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("tty"); err != nil {
		return nil, err
	}

	deviceCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan DeviceEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				if logger != nil {
					logger.Error("udev monitor error", "err", err)
				}
			case d, ok := <-deviceCh:
				if !ok {
					return
				}
				node := d.Devnode()
				if !isCandidateTTY(node) {
					continue
				}
				select {
				case out <- DeviceEvent{Action: d.Action(), Path: node}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func isCandidateTTY(devnode string) bool {
	base := devnode
	if i := strings.LastIndex(devnode, "/"); i >= 0 {
		base = devnode[i+1:]
	}
	return strings.HasPrefix(base, "ttyUSB") || strings.HasPrefix(base, "ttyACM")
}
