package discover

import (
	"github.com/albenik/go-serial/v2"
)

// The detailed enumerator needs cgo on macOS, plain names are enough there.
var listPorts = func() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]Port, 0, len(names))
	for _, name := range names {
		ports = append(ports, Port{Name: name})
	}
	return ports, nil
}
