package ktransport

import (
	"fmt"

	hamlib "github.com/xylo04/goHamlib"
)

// HamlibSquelchCycler implements klink.SquelchCycler: it briefly forces
// the rig's squelch open and closed again, a workaround for radios whose
// receiver audio path needs a kick after a long idle period before it will
// pass the other station's UA reply. Grounded in original_source's
// _cycle_squelch_workaround (SPEC_FULL.md §3) and the teacher's Hamlib
// PTT/rig-control binding (src/ptt.go's HAMLIB support, version 1.3).
type HamlibSquelchCycler struct {
	rig *hamlib.Rig
}

// OpenHamlibSquelchCycler opens a Hamlib rig of the given model at the
// given device path/rate for squelch control only; it does not touch PTT
// or frequency.
func OpenHamlibSquelchCycler(model int, device string, baud int) (*HamlibSquelchCycler, error) {
	rig := hamlib.RigInit(model)
	if rig == nil {
		return nil, fmt.Errorf("ktransport: hamlib rig_init failed for model %d", model)
	}
	rig.SetConf("rig_pathname", device)
	if baud > 0 {
		rig.SetConf("serial_speed", fmt.Sprintf("%d", baud))
	}
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("ktransport: hamlib open %s: %w", device, err)
	}
	return &HamlibSquelchCycler{rig: rig}, nil
}

// CycleSquelch forces squelch open then restores automatic operation,
// satisfying klink.SquelchCycler.
func (h *HamlibSquelchCycler) CycleSquelch() error {
	if err := h.rig.SetLevel(hamlib.LevelSquelch, 0); err != nil {
		return fmt.Errorf("ktransport: hamlib force squelch open: %w", err)
	}
	if err := h.rig.SetLevel(hamlib.LevelSquelch, 128); err != nil {
		return fmt.Errorf("ktransport: hamlib restore squelch: %w", err)
	}
	return nil
}

// Close releases the Hamlib rig handle.
func (h *HamlibSquelchCycler) Close() error {
	return h.rig.Close()
}
