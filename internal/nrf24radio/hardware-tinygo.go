//go:build tinygo

package nrf24radio

import (
	"machine"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	var mPull machine.PinMode
	switch pull {
	case PullUp:
		mPull = machine.PinInputPullup
	case PullDown:
		mPull = machine.PinInputPulldown
	default:
		mPull = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: mPull})
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

func (p *tinygoPin) Watch(edge Edge, handler func()) error {
	var mEdge machine.PinChange
	switch edge {
	case RisingEdge:
		mEdge = machine.PinRising
	case FallingEdge:
		mEdge = machine.PinFalling
	case BothEdges:
		mEdge = machine.PinToggle
	default:
		return nil
	}
	return p.pin.SetInterrupt(mEdge, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// tinygoSPI wraps a machine.SPI with manual chip-select toggling.
type tinygoSPI struct {
	spi *machine.SPI
	cs  machine.Pin
}

func (s *tinygoSPI) Tx(w, r []byte) error {
	s.cs.Low()
	err := s.spi.Tx(w, r)
	s.cs.High()
	return err
}

// HardwareBinding names the TinyGo SPI bus and pins one Device binds to.
type HardwareBinding struct {
	SPI    *machine.SPI
	CSPin  machine.Pin
	CEPin  machine.Pin
	IRQPin machine.Pin // machine.NoPin if unused
}

// New creates a Device bound to TinyGo machine pins and SPI bus.
func New(rc RadioConfig, b HardwareBinding) (*Device, error) {
	b.CSPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.CSPin.High()

	ceWrapper := &tinygoPin{pin: b.CEPin}

	var irqWrapper Pin
	if b.IRQPin != machine.NoPin {
		irqWrapper = &tinygoPin{pin: b.IRQPin}
	}

	spiWrapper := &tinygoSPI{spi: b.SPI, cs: b.CSPin}

	hwConfig := HardwareConfig{RadioConfig: rc, CE: ceWrapper, IRQ: irqWrapper}
	return NewWithHardware(hwConfig, spiWrapper)
}
