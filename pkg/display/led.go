package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
)

// LogLED is a virtual LED which logs its pulses.
type LogLED struct {
	Name  string
	Sleep func(time.Duration)
}

// Pulse implements Pulser.
func (l *LogLED) Pulse(count int, on, off time.Duration) {
	sleep := l.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for i := 1; i <= count; i++ {
		glog.Infof("LED %s: pulse %d/%d", l.Name, i, count)
		sleep(on)
		sleep(off)
	}
}

// SysfsLEDRoot is where the kernel exposes LED class devices.
const SysfsLEDRoot = "/sys/class/leds"

// SysfsLED drives an LED through the Linux LED class interface.
type SysfsLED struct {
	Path  string
	Sleep func(time.Duration)
}

// OpenSysfsLED finds the LED with name under root (SysfsLEDRoot if empty)
// and turns it off.
func OpenSysfsLED(root, name string) (*SysfsLED, error) {
	if root == "" {
		root = SysfsLEDRoot
	}
	if name == "" || strings.ContainsRune(name, '/') {
		return nil, fmt.Errorf("invalid LED name %q", name)
	}
	l := &SysfsLED{Path: filepath.Join(root, name, "brightness")}
	if err := l.set(false); err != nil {
		return nil, err
	}
	return l, nil
}

// Pulse implements Pulser. Write errors are logged as the display has no
// way to report them.
func (l *SysfsLED) Pulse(count int, on, off time.Duration) {
	sleep := l.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for i := 0; i < count; i++ {
		if err := l.set(true); err != nil {
			glog.Errorf("LED %s: %v", l.Path, err)
		}
		sleep(on)
		if err := l.set(false); err != nil {
			glog.Errorf("LED %s: %v", l.Path, err)
		}
		sleep(off)
	}
}

func (l *SysfsLED) set(lit bool) error {
	val := []byte("0")
	if lit {
		val = []byte("1")
	}
	return os.WriteFile(l.Path, val, 0644)
}
