package nrf24radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrDevice     = errors.New("nrf24radio")
	ErrMaxRetries = errors.New("max retransmissions reached")
	ErrTimeout    = errors.New("timeout waiting for device")
)

// Address is the on-air hardware address of one pipe. It is distinct from
// bridge.Addr: the adapter maps the bridge's 6-byte logical addresses onto
// these before handing anything to the chip (see adapter.go).
type Address [5]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4])
}

type CRCLength byte

const (
	CRCLengthDisabled CRCLength = iota
	CRCLength8
	CRCLength16
)

// --- NRF24L01 Registers/Commands/Bits ---

const (
	_CONFIG      = 0x00
	_RF_CH       = 0x05
	_RF_SETUP    = 0x06
	_STATUS      = 0x07
	_RX_ADDR_P0  = 0x0A
	_RX_ADDR_P1  = 0x0B
	_TX_ADDR_REG = 0x10
	_RX_PW_P0    = 0x11
	_RX_PW_P1    = 0x12

	_DYNPD   = 0x1C
	_FEATURE = 0x1D

	_W_REGISTER         = 0x20
	_R_RX_PAYLOAD       = 0x61
	_W_TX_PAYLOAD       = 0xA0
	_W_TX_PAYLOAD_NOACK = 0xB0
	_FLUSH_TX           = 0xE1
	_FLUSH_RX           = 0xE2
	_NOP                = 0xFF
)

const (
	_PWR_UP  = 1 << 1
	_PRIM_RX = 1 << 0
	_RX_DR   = 1 << 6
	_TX_DS   = 1 << 5
	_MAX_RT  = 1 << 4
	_EN_CRC  = 1 << 3
	_CRCO    = 1 << 2

	_SETUP_RETR = 0x04
	_EN_AA      = 0x01
	_EN_RXADDR  = 0x02
	_ERX_P0     = 1 << 0
	_ERX_P1     = 1 << 1
	_SETUP_AW   = 0x03

	_EN_DPL     = 1 << 2
	_EN_ACK_PAY = 1 << 1
	_EN_DYN_ACK = 1 << 0
)

const maxPayloadBytes = 32

// RadioConfig holds the chip-level parameters the adapter derives from the
// bridge's domain channel and its own fixed addressing scheme; it is not
// exposed past this package.
type RadioConfig struct {
	ChannelNumber       byte
	RxAddr              Address
	AutoRetransmitDelay uint16
	AutoRetransmitCount byte
	CRCLength           CRCLength
}

type HardwareConfig struct {
	RadioConfig
	CE  Pin
	IRQ Pin
}

// Device is a trimmed register-level driver for the NRF24L01+, fixed to a
// 32-byte static payload with hardware auto-ack enabled on both pipes. Only
// the operations the adapter in this package actually calls are exposed;
// everything else from the original standalone driver (dynamic payload,
// ack-payload piggybacking, per-pipe configuration, carrier sense, power
// management, retransmission counters) has no caller here and was dropped.
type Device struct {
	config  HardwareConfig
	conn    SPI
	irqChan chan struct{}
	nrfPort io.Closer
	mu      sync.Mutex
	scratch [33]byte
}

// NewWithHardware brings up the radio: reset, configure RF parameters, fixed
// 32-byte static payload on pipes 0 and 1, auto-ack and auto-retransmit on,
// then verify the channel register reads back before returning.
func NewWithHardware(c HardwareConfig, conn SPI) (*Device, error) {
	if c.AutoRetransmitDelay == 0 {
		c.AutoRetransmitDelay = 250
	}
	if c.AutoRetransmitCount == 0 {
		c.AutoRetransmitCount = 3
	}
	if c.CRCLength == 0 {
		c.CRCLength = CRCLength16
	}
	if c.CE == nil {
		return nil, fmt.Errorf("CE pin not configured")
	}
	if c.ChannelNumber > 124 {
		return nil, fmt.Errorf("channel number must be between 0 and 124")
	}

	dev := &Device{config: c, conn: conn}

	globalLogger.Info("nrf24radio: initializing SPI communication")

	dev.config.CE.Out(Low)

	if dev.config.IRQ != nil {
		dev.config.IRQ.In(PullUp)
		dev.irqChan = make(chan struct{}, 1)
		if err := dev.config.IRQ.Watch(FallingEdge, func() {
			select {
			case dev.irqChan <- struct{}{}:
			default:
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to watch IRQ pin: %w", err)
		}
	}

	dev.setCE(false)
	dev.writeRegister(_CONFIG, 0)
	dev.clearStatus()
	dev.flushTX()
	dev.flushRX()

	var configValue byte = _PWR_UP | _PRIM_RX
	switch dev.config.CRCLength {
	case CRCLength8:
		configValue |= _EN_CRC
	case CRCLength16:
		configValue |= _EN_CRC | _CRCO
	}
	dev.writeRegister(_CONFIG, configValue)
	time.Sleep(5 * time.Millisecond)

	dev.writeRegister(_RF_CH, dev.config.ChannelNumber)
	dev.writeRegister(_SETUP_AW, 5-2) // 5-byte addresses throughout

	ard := (dev.config.AutoRetransmitDelay/250 - 1) & 0x0F
	arc := dev.config.AutoRetransmitCount & 0x0F
	dev.writeRegister(_SETUP_RETR, (byte(ard)<<4)|byte(arc))

	// Fixed at 250kbps / max power: longest range, matching the low duty
	// cycle cooperative main loop this radio serves.
	var rfSetup byte = 1<<5 | 3<<1
	dev.writeRegister(_RF_SETUP, rfSetup)

	dev.writeRegister(_EN_AA, _ERX_P0|_ERX_P1)
	dev.writeRegister(_EN_RXADDR, _ERX_P0|_ERX_P1)
	dev.writeRegisterN(_RX_ADDR_P1, dev.config.RxAddr[:])

	// Dynamic ACK feature bit must stay on to permit per-packet no-ack
	// broadcasts (TransmitNoAck) alongside acked unicast.
	dev.writeRegister(_FEATURE, _EN_DYN_ACK)
	dev.writeRegister(_DYNPD, 0)
	dev.writeRegister(_RX_PW_P0, maxPayloadBytes)
	dev.writeRegister(_RX_PW_P1, maxPayloadBytes)

	readChannel := dev.readRegister(_RF_CH)
	if readChannel != dev.config.ChannelNumber {
		dev.Close()
		return nil, fmt.Errorf("failed to verify NRF24L01 connection: check wiring/power")
	}

	globalLogger.Info("nrf24radio: initialized and powered up")
	dev.setCE(true)
	return dev, nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("NRF24L01(Channel=%d, RxAddr=%s)", d.config.ChannelNumber, d.config.RxAddr)
}

// Close powers down the radio and releases its SPI/GPIO resources.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.writeRegister(_CONFIG, dev.readRegister(_CONFIG)&^byte(_PWR_UP))
	globalLogger.Info("nrf24radio: powered down")

	if dev.nrfPort != nil {
		if err := dev.nrfPort.Close(); err != nil {
			globalLogger.Warn("nrf24radio: failed to close SPI port")
		}
	}
	if dev.config.IRQ != nil {
		dev.config.IRQ.Unwatch()
	}
	return nil
}

func (d *Device) spiTransfer(len int) (status byte, response []byte) {
	slice := d.scratch[:len]
	if err := d.conn.Tx(slice, slice); err != nil {
		globalLogger.Error("nrf24radio: SPI transfer error")
		return 0, nil
	}
	if len > 0 {
		return d.scratch[0], d.scratch[1:len]
	}
	return 0, nil
}

func (d *Device) writeRegister(reg, val byte) {
	d.scratch[0] = _W_REGISTER | reg
	d.scratch[1] = val
	d.spiTransfer(2)
}

func (d *Device) readRegister(reg byte) byte {
	d.scratch[0] = reg
	d.scratch[1] = _NOP
	_, data := d.spiTransfer(2)
	if len(data) > 0 {
		return data[0]
	}
	return 0
}

func (d *Device) writeRegisterN(reg byte, data []byte) {
	d.scratch[0] = _W_REGISTER | reg
	copy(d.scratch[1:], data)
	d.spiTransfer(1 + len(data))
}

func (d *Device) flushTX() {
	d.scratch[0] = _FLUSH_TX
	d.spiTransfer(1)
}

func (d *Device) flushRX() {
	d.scratch[0] = _FLUSH_RX
	d.spiTransfer(1)
}

func (d *Device) clearStatus() {
	d.writeRegister(_STATUS, _RX_DR|_TX_DS|_MAX_RT)
}

func (d *Device) setCE(level bool) {
	if level {
		d.config.CE.Out(High)
	} else {
		d.config.CE.Out(Low)
	}
}

func (d *Device) setTargetAddress(addr Address) {
	d.setCE(false)
	d.writeRegisterN(_TX_ADDR_REG, addr[:])
	// Auto-ack requires RX_ADDR_P0 mirror TX_ADDR: the ack itself arrives on
	// pipe 0.
	d.writeRegisterN(_RX_ADDR_P0, addr[:])
	time.Sleep(time.Millisecond)
}

// SetChannel changes the chip's RF channel register directly; the adapter is
// responsible for mapping a domain channel number onto the 0..124 range
// before calling this.
func (d *Device) SetChannel(channel byte) error {
	if channel > 124 {
		return fmt.Errorf("channel number must be between 0 and 124")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(_RF_CH, channel)
	d.config.ChannelNumber = channel
	return nil
}

func (d *Device) startListening() {
	d.setCE(false)
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)|_PRIM_RX)
	d.setCE(true)
	time.Sleep(130 * time.Microsecond)
	d.clearStatus()
	d.flushRX()
}

func (d *Device) stopListening() {
	d.setCE(false)
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)&^byte(_PRIM_RX))
}

func (d *Device) available() bool {
	return ((d.readRegister(_STATUS) >> 1) & 0x07) != 7
}

func (d *Device) readFixedPayload() ([]byte, bool) {
	if !d.available() {
		return nil, false
	}
	d.scratch[0] = _R_RX_PAYLOAD
	for i := 1; i <= maxPayloadBytes; i++ {
		d.scratch[i] = _NOP
	}
	_, data := d.spiTransfer(maxPayloadBytes + 1)
	result := make([]byte, len(data))
	copy(result, data)
	d.clearStatus()
	return result, true
}

func (d *Device) write(data []byte, noAck bool) error {
	d.stopListening()

	cmdPrefix := byte(_W_TX_PAYLOAD)
	if noAck {
		cmdPrefix = _W_TX_PAYLOAD_NOACK
	}
	d.scratch[0] = cmdPrefix
	for i := 1; i <= maxPayloadBytes; i++ {
		d.scratch[i] = 0
	}
	copy(d.scratch[1:], data)
	d.spiTransfer(1 + maxPayloadBytes)

	d.setCE(true)
	time.Sleep(15 * time.Microsecond)
	d.setCE(false)

	timeoutDuration := time.Duration(d.config.AutoRetransmitDelay)*time.Duration(d.config.AutoRetransmitCount)*time.Microsecond + 50*time.Millisecond
	timeout := time.After(timeoutDuration)

	for {
		select {
		case <-timeout:
			d.clearStatus()
			d.flushTX()
			return fmt.Errorf("%w: %w", ErrDevice, ErrTimeout)
		default:
			status := d.readRegister(_STATUS)
			if status&(_TX_DS|_MAX_RT) != 0 {
				d.clearStatus()
				if status&_MAX_RT != 0 {
					d.flushTX()
					return fmt.Errorf("%w: %w", ErrDevice, ErrMaxRetries)
				}
				return nil
			}
			time.Sleep(1 * time.Millisecond)
		}
	}
}

// Transmit sends an acked unicast payload, up to 32 bytes, padded with zeros
// to the fixed payload width.
func (dev *Device) Transmit(destAddr Address, p []byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.stopListening()

	if len(p) > maxPayloadBytes {
		return fmt.Errorf("%w: payload too large (%d bytes), limit is %d", ErrDevice, len(p), maxPayloadBytes)
	}
	dev.setTargetAddress(destAddr)
	if err := dev.write(p, false); err != nil {
		dev.startListening()
		return fmt.Errorf("failed to send data: %w", err)
	}
	dev.startListening()
	return nil
}

// TransmitNoAck sends a no-ack payload; used for the Sender's SEARCH
// broadcast, which has no single recipient to ack it.
func (dev *Device) TransmitNoAck(destAddr Address, p []byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.stopListening()

	if len(p) > maxPayloadBytes {
		return fmt.Errorf("%w: payload too large (%d bytes), limit is %d", ErrDevice, len(p), maxPayloadBytes)
	}
	dev.setTargetAddress(destAddr)
	if err := dev.write(p, true); err != nil {
		dev.startListening()
		return fmt.Errorf("failed to send data: %w", err)
	}
	dev.startListening()
	return nil
}

// Receive is non-blocking: it returns the fixed-size payload and true if one
// was waiting in the RX FIFO.
func (dev *Device) Receive() ([]byte, bool) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.readFixedPayload()
}

// WaitForInterrupt blocks until the IRQ pin fires or ctx is cancelled,
// returning the STATUS register snapshot taken at that moment.
func (d *Device) WaitForInterrupt(ctx context.Context) (byte, error) {
	if d.config.IRQ == nil {
		return 0, fmt.Errorf("IRQ pin not configured")
	}
	if d.config.IRQ.Read() == Low {
		d.mu.Lock()
		status := d.readRegister(_STATUS)
		d.mu.Unlock()
		return status, nil
	}
	select {
	case <-d.irqChan:
		d.mu.Lock()
		status := d.readRegister(_STATUS)
		d.mu.Unlock()
		return status, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ReceiveBlocking waits for the next packet, using the IRQ pin if configured
// or a 5ms poll otherwise.
func (d *Device) ReceiveBlocking(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, ok := d.Receive()
		if ok {
			return data, nil
		}

		if d.config.IRQ != nil {
			status, err := d.WaitForInterrupt(ctx)
			if err != nil {
				return nil, err
			}
			if status&_RX_DR != 0 {
				continue
			}
			d.clearInterrupts(status)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				time.Sleep(5 * time.Millisecond)
			}
		}
	}
}

func (d *Device) clearInterrupts(flags byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(_STATUS, flags)
}
