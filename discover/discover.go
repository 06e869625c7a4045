package discover

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var ErrNoPorts = errors.New("no serial ports found")

// Port - Serial port found on the system
type Port struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// USB-UART bridges commonly used as RL78 programming adapters
var bridges = map[string]string{
	"0403": "FTDI",
	"10C4": "Silicon Labs CP210x",
	"1A86": "WCH CH340",
	"067B": "Prolific PL2303",
	"045B": "Renesas",
}

// Bridge returns the vendor name of a known USB-UART bridge, or an empty
// string.
func (p Port) Bridge() string {
	if !p.IsUSB {
		return ""
	}
	return bridges[strings.ToUpper(p.VID)]
}

func (p Port) String() string {
	if !p.IsUSB {
		return p.Name
	}

	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if bridge := p.Bridge(); bridge != "" {
		s += " " + bridge
	}
	if p.SerialNumber != "" {
		s += " S/N " + p.SerialNumber
	}
	return s
}

// Ports - Lists all serial ports, USB-UART bridges first, then by name
func Ports() ([]Port, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ports, func(i, j int) bool {
		bi, bj := ports[i].Bridge() != "", ports[j].Bridge() != ""
		if bi != bj {
			return bi
		}
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}

// FirstPort - Name of the port a programming adapter is most likely
// connected to
func FirstPort() (string, error) {
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoPorts
	}
	return ports[0].Name, nil
}

// PrintPorts - Writes one line per port to w
func PrintPorts(w io.Writer) error {
	ports, err := Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return ErrNoPorts
	}

	for _, port := range ports {
		if _, err := fmt.Fprintln(w, port); err != nil {
			return err
		}
	}
	return nil
}
