package i2csensors

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce    sync.Once
	hostInitErr error
)

// OpenBus returns a new handle on the named bus, e.g. "/dev/i2c-1".
// Every device gets its own handle; closing one doesn't affect the others.
func OpenBus(path string) (i2c.BusCloser, error) {
	hostOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			hostInitErr = errors.Wrap(err, "periph host init failed")
			return
		}
		for _, d := range state.Loaded {
			log.Debugf("periph driver loaded: %s", d)
		}
	})
	if hostInitErr != nil {
		return nil, hostInitErr
	}

	bus, err := i2creg.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open i2c bus %s", path)
	}
	return bus, nil
}
