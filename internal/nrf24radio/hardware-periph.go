//go:build !tinygo

package nrf24radio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
	stopWatch chan struct{}
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) In(pull Pull) error {
	var pPull gpio.Pull
	switch pull {
	case PullFloat:
		pPull = gpio.Float
	case PullDown:
		pPull = gpio.PullDown
	case PullUp:
		pPull = gpio.PullUp
	default:
		pPull = gpio.PullNoChange
	}
	return p.PinIO.In(pPull, gpio.NoEdge)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

func (p *realPin) Watch(edge Edge, handler func()) error {
	var pEdge gpio.Edge
	switch edge {
	case RisingEdge:
		pEdge = gpio.RisingEdge
	case FallingEdge:
		pEdge = gpio.FallingEdge
	case BothEdges:
		pEdge = gpio.BothEdges
	default:
		pEdge = gpio.NoEdge
	}

	if err := p.PinIO.In(gpio.PullUp, pEdge); err != nil {
		return err
	}

	p.stopWatch = make(chan struct{})

	go func() {
		for {
			if p.PinIO.WaitForEdge(-1) {
				select {
				case <-p.stopWatch:
					return
				default:
					handler()
				}
			} else {
				select {
				case <-p.stopWatch:
					return
				default:
				}
			}
		}
	}()
	return nil
}

func (p *realPin) Unwatch() error {
	if p.stopWatch != nil {
		close(p.stopWatch)
		p.stopWatch = nil
	}
	return p.PinIO.In(gpio.PullUp, gpio.NoEdge)
}

// HardwareBinding names the Linux GPIO/SPI resources one Device binds to.
type HardwareBinding struct {
	CEPin      int
	IRQPin     int
	SpiBusPath string
	SpiClockHz int
}

// spiTx adapts a periph.io spi.Conn to the SPI interface.
type spiTx struct{ conn spi.Conn }

func (s *spiTx) Tx(w, r []byte) error { return s.conn.Tx(w, r) }

// New creates and initializes a Device bound to real Linux GPIO/SPI hardware
// via periph.io.
func New(rc RadioConfig, b HardwareBinding) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}
	if b.SpiBusPath == "" {
		b.SpiBusPath = "/dev/spidev0.0"
	}
	p, err := spireg.Open(b.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}
	if b.SpiClockHz == 0 {
		b.SpiClockHz = 1000000
	}
	conn, err := p.Connect(physic.Frequency(b.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}

	if b.CEPin == 0 {
		b.CEPin = 25
	}
	ceName := fmt.Sprintf("GPIO%d", b.CEPin)
	realCe := gpioreg.ByName(ceName)
	if realCe == nil {
		p.Close()
		return nil, fmt.Errorf("failed to open CE pin %s", ceName)
	}
	ceWrapper := &realPin{PinIO: realCe}

	var irqWrapper Pin
	if b.IRQPin != 0 {
		irqName := fmt.Sprintf("GPIO%d", b.IRQPin)
		realIrq := gpioreg.ByName(irqName)
		if realIrq == nil {
			p.Close()
			return nil, fmt.Errorf("failed to open IRQ pin %s", irqName)
		}
		irqWrapper = &realPin{PinIO: realIrq}
	}

	hwConfig := HardwareConfig{RadioConfig: rc, CE: ceWrapper, IRQ: irqWrapper}
	dev, err := NewWithHardware(hwConfig, &spiTx{conn})
	if err != nil {
		p.Close()
		return nil, err
	}
	dev.nrfPort = p
	return dev, nil
}
