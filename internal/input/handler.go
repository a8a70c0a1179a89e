package input

import "errors"

// Modifiers that are only ever tapped. A lost key-up on one of these would
// leave the remote desktop stuck.
var tapOnly = map[string]bool{
	"win":   true,
	"alt":   true,
	"shift": true,
}

// Keyboard applies normalized key events to an Injector.
type Keyboard struct {
	inj Injector
}

func NewKeyboard(inj Injector) *Keyboard {
	return &Keyboard{inj: inj}
}

// HandleKey applies one key action: down, up or press.
func (k *Keyboard) HandleKey(action, key string) error {
	if tapOnly[key] {
		if action == "down" || action == "press" {
			return k.inj.KeyPress(key)
		}
		return nil
	}
	switch action {
	case "down":
		return k.inj.KeyDown(key)
	case "up":
		return k.inj.KeyUp(key)
	case "press":
		return k.inj.KeyPress(key)
	}
	return nil
}

// HandleCombo holds every key in order and releases them in reverse.
// Exactly shift+delete is sent as shift held around a delete tap.
func (k *Keyboard) HandleCombo(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if isShiftDelete(keys) {
		if err := k.inj.KeyDown("shift"); err != nil {
			return err
		}
		err := k.inj.KeyPress("delete")
		return errors.Join(err, k.inj.KeyUp("shift"))
	}

	var errs []error
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := k.inj.KeyDown(key); err != nil {
			errs = append(errs, err)
			break
		}
		held = append(held, key)
	}
	for i := len(held) - 1; i >= 0; i-- {
		if err := k.inj.KeyUp(held[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isShiftDelete(keys []string) bool {
	if len(keys) != 2 {
		return false
	}
	return (keys[0] == "shift" && keys[1] == "delete") || (keys[0] == "delete" && keys[1] == "shift")
}
