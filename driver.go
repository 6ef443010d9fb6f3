package nrf24

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Sentinel error kinds. Wrap with fmt.Errorf("nrf24: ...: %w", ErrX) and
// unwrap with errors.Is.
var (
	// ErrTransport identifies an SPI transport failure.
	ErrTransport = errors.New("spi transport error")
	// ErrPin identifies a CE/IRQ digital-pin failure.
	ErrPin = errors.New("gpio pin error")
	// ErrBinaryCorruption identifies an impossible SPI read-back, signalling
	// a wiring or signalling fault.
	ErrBinaryCorruption = errors.New("binary corruption")
	// ErrNotTransmitting identifies an attempt to write a TX payload while
	// the radio is configured as a primary receiver (PRIM_RX set).
	ErrNotTransmitting = errors.New("radio is not configured as transmitter")
)

// HardwareConfig bundles a RadioConfig with the GPIO pins the driver owns
// directly. The SPI device is supplied separately to NewWithHardware so
// platform adapters can open it however is idiomatic for that platform.
type HardwareConfig struct {
	RadioConfig
	// CE is the Chip Enable pin.
	CE Pin
	// IRQ is the Interrupt Request pin (active-low). Optional; if nil,
	// ReceiveBlocking falls back to polling.
	IRQ Pin
	// Delay is the injected delay clock. The platform adapters' New()
	// always supplies their own; if nil, the driver skips every delay.
	Delay Delay
}

// Device is the owned, single-threaded nRF24L01(+) driver. It exclusively
// owns the SPI device, the CE pin, the delay clock, the cached register
// shadows, a 33-byte scratch buffer, the cached pipe-0 RX address, the
// current TX address, and the static payload length.
//
// A Device must not be used concurrently from multiple goroutines: every
// operation mutates shared shadow state without synchronization, matching
// the single-threaded exclusive-ownership model the ESB protocol assumes.
type Device struct {
	conn  SPI
	ce    Pin
	irq   Pin
	delay Delay

	irqChan chan struct{}
	nrfPort io.Closer

	scratch [33]byte

	status        statusFlags
	config        configReg
	feature       featureReg
	pipe0RxAddr   *[5]byte
	txAddress     [5]byte
	payloadLength byte
	autoAck       bool
	ackPayloads   bool

	txDelay uint32 // microseconds
}

// NewWithHardware constructs a Device from already-open peripherals,
// configures and watches the IRQ pin if one is given, and runs Init with
// hw.RadioConfig to bring the radio up.
func NewWithHardware(hw HardwareConfig, conn SPI) (*Device, error) {
	if hw.CE == nil {
		return nil, fmt.Errorf("nrf24: CE pin not configured")
	}
	if conn == nil {
		return nil, fmt.Errorf("nrf24: SPI device not configured")
	}

	d := &Device{
		conn:          conn,
		ce:            hw.CE,
		irq:           hw.IRQ,
		delay:         hw.Delay,
		status:        newStatusFlags(0),
		config:        configReg(0x0C), // 16-bit CRC, power-down, TX by default
		feature:       featureReg{addressLength: 5, isPlusVariant: true},
		payloadLength: 32,
		autoAck:       true,
		txDelay:       280,
	}
	for i := range d.txAddress {
		d.txAddress[i] = 0xE7
	}

	if hw.IRQ != nil {
		if err := hw.IRQ.In(PullUp); err != nil {
			return nil, fmt.Errorf("nrf24: configure IRQ pin: %w", err)
		}
		d.irqChan = make(chan struct{}, 1)
		if err := hw.IRQ.Watch(FallingEdge, func() {
			select {
			case d.irqChan <- struct{}{}:
			default:
			}
		}); err != nil {
			return nil, fmt.Errorf("nrf24: watch IRQ pin: %w", err)
		}
	}

	if err := d.Init(hw.RadioConfig); err != nil {
		return nil, err
	}
	return d, nil
}

// --- SPI command encoding -------------------------------------------------

func (d *Device) spiTransfer(n int) error {
	slice := d.scratch[:n]
	if err := d.conn.Tx(slice, slice); err != nil {
		return fmt.Errorf("nrf24: spi transfer: %w: %w", ErrTransport, err)
	}
	d.status = newStatusFlags(d.scratch[0])
	return nil
}

func (d *Device) spiRead(n int, command byte) error {
	d.scratch[0] = command
	return d.spiTransfer(n + 1)
}

func (d *Device) spiWriteByte(command, value byte) error {
	d.scratch[0] = command | commandWRegister
	d.scratch[1] = value
	return d.spiTransfer(2)
}

func (d *Device) spiWriteBuf(command byte, buf []byte) error {
	d.scratch[0] = command | commandWRegister
	copy(d.scratch[1:len(buf)+1], buf)
	return d.spiTransfer(len(buf) + 1)
}

// toggleFeatures issues the ACTIVATE 0x73 command, which has no effect on
// plus-variant silicon and toggles the FEATURE register on original
// nRF24L01 silicon. Used only during plus-variant detection.
func (d *Device) toggleFeatures() error {
	d.scratch[0] = commandActivate
	d.scratch[1] = 0x73
	return d.spiTransfer(2)
}

func (d *Device) delayNs(ns uint32) {
	if d.delay != nil {
		d.delay.DelayNs(ns)
	}
}

func (d *Device) setCE(level bool) error {
	if level {
		if err := d.ce.Out(High); err != nil {
			return fmt.Errorf("nrf24: ce high: %w: %w", ErrPin, err)
		}
		return nil
	}
	if err := d.ce.Out(Low); err != nil {
		return fmt.Errorf("nrf24: ce low: %w: %w", ErrPin, err)
	}
	return nil
}

// --- Initialization --------------------------------------------------------

// Init waits for the radio to settle after power-on, verifies SPI wiring
// by reading CONFIG back, probes for plus-variant silicon, and applies the
// given configuration.
func (d *Device) Init(cfg RadioConfig) error {
	d.delayNs(5_000_000)

	if err := d.spiWriteByte(regConfig, 0); err != nil {
		return err
	}
	if err := d.spiRead(1, regConfig); err != nil {
		return err
	}
	if d.scratch[1] != 0 {
		return fmt.Errorf("nrf24: config readback mismatch: %w", ErrBinaryCorruption)
	}
	d.config = configReg(0)

	if err := d.probePlusVariant(); err != nil {
		return err
	}
	globalLogger.Info("nrf24: plus-variant detection complete")

	if err := d.WithConfig(cfg); err != nil {
		return err
	}
	globalLogger.Info("nrf24: initialized")
	return nil
}

// probePlusVariant toggles the ACTIVATE command and compares FEATURE
// before/after: equal values mean plus-variant (the toggle is a no-op);
// unequal values mean a pre-plus chip, in which case the toggle is
// re-issued if it lowered the FEATURE value, restoring it.
func (d *Device) probePlusVariant() error {
	if err := d.spiRead(1, regFeature); err != nil {
		return err
	}
	before := d.scratch[1]

	if err := d.toggleFeatures(); err != nil {
		return err
	}
	if err := d.spiRead(1, regFeature); err != nil {
		return err
	}
	after := d.scratch[1]

	if after == before {
		d.feature.isPlusVariant = true
		return nil
	}
	d.feature.isPlusVariant = false
	if after < before {
		if err := d.toggleFeatures(); err != nil {
			return err
		}
	}
	return nil
}

// IsPlusVariant reports whether Init detected nRF24L01+ silicon.
func (d *Device) IsPlusVariant() bool { return d.feature.isPlusVariant }

// WithConfig atomically reapplies a RadioConfig to hardware: clears IRQ
// flags, powers down, flushes both FIFOs, writes address length, retry
// settings, auto-ack mask, feature/DYNPD registers, RF_SETUP, every RX
// pipe's address and open/closed state, the TX address, per-pipe static
// payload widths, the channel, and finally CONFIG with power-up set and
// PRIM_RX cleared (idle standby).
func (d *Device) WithConfig(cfg RadioConfig) error {
	if err := d.ClearStatusFlags(true, true, true); err != nil {
		return err
	}
	d.config = d.config.withPwrUp(false)
	if err := d.spiWriteByte(regConfig, byte(d.config)); err != nil {
		return err
	}
	if err := d.FlushTX(); err != nil {
		return err
	}
	if err := d.FlushRX(); err != nil {
		return err
	}

	if err := d.SetAddressLength(cfg.AddressLength()); err != nil {
		return err
	}
	if err := d.SetAutoRetries(cfg.AutoRetryDelay(), cfg.AutoRetryCount()); err != nil {
		return err
	}

	var aaMask byte
	for p := byte(0); p < pipeCount; p++ {
		if cfg.AutoAckPipe(p) {
			aaMask |= 1 << p
		}
	}
	d.autoAck = aaMask != 0
	if err := d.spiWriteByte(regEnAA, aaMask); err != nil {
		return err
	}

	d.feature = d.feature.
		withAckPayloads(cfg.AckPayloads()).
		withDynamicPayloads(cfg.DynamicPayloads()).
		withAskNoAck(cfg.AskNoAck())
	d.ackPayloads = cfg.AckPayloads()
	if err := d.spiWriteByte(regFeature, d.feature.bits); err != nil {
		return err
	}
	var dynpd byte
	if cfg.DynamicPayloads() {
		dynpd = 0x3F
	}
	if err := d.spiWriteByte(regDynpd, dynpd); err != nil {
		return err
	}

	if err := d.spiWriteByte(regRFSetup, rfSetupBits(cfg.DataRate(), cfg.PaLevel(), cfg.Lna())); err != nil {
		return err
	}
	d.txDelay = txDelayMicros(cfg.DataRate())

	d.payloadLength = cfg.PayloadLength()
	for p := byte(0); p < pipeCount; p++ {
		addr := cfg.RxAddress(p)
		if err := d.OpenRxPipe(p, addr[:]); err != nil {
			return err
		}
		if !cfg.IsRxPipeEnabled(p) {
			if err := d.CloseRxPipe(p); err != nil {
				return err
			}
		}
	}

	txAddr := cfg.TxAddress()
	d.txAddress = txAddr
	if err := d.spiWriteBuf(regTxAddr, txAddr[:]); err != nil {
		return err
	}

	for p := byte(0); p < pipeCount; p++ {
		if err := d.spiWriteByte(regRxPwP0+p, d.payloadLength); err != nil {
			return err
		}
	}

	if err := d.spiWriteByte(regRFCh, cfg.Channel()); err != nil {
		return err
	}

	d.config = d.config.
		withPwrUp(true).
		withRx(false).
		withMaskRxDr(!cfg.irqRxDr).
		withMaskTxDs(!cfg.irqTxDs).
		withMaskTxDf(!cfg.irqTxDf).
		withCrc(cfg.CrcLength())
	return d.spiWriteByte(regConfig, byte(d.config))
}

// --- Pipes -------------------------------------------------------------

// OpenRxPipe opens the given pipe (0-5) for reception with the provided
// address. Pipes 0 and 1 write up to AddressLength bytes; pipes 2-5 write
// only the distinguishing first byte. Pipe 0 is cached because active TX
// temporarily overwrites RX_ADDR_P0 with the TX address for ACK reception;
// if the radio is currently in TX mode, the write to RX_ADDR_P0 is skipped
// (the cache is still updated) and AsRx restores it. Out-of-range pipe
// numbers are a no-op.
func (d *Device) OpenRxPipe(pipe byte, address []byte) error {
	if pipe >= pipeCount {
		return nil
	}

	if pipe < 2 {
		width := len(address)
		if width > int(d.feature.addressLength) {
			width = int(d.feature.addressLength)
		}
		if pipe == 0 {
			var cached [5]byte
			if d.pipe0RxAddr != nil {
				cached = *d.pipe0RxAddr
			}
			copy(cached[:width], address[:width])
			d.pipe0RxAddr = &cached
		}
		if d.config.isRx() || pipe != 0 {
			if err := d.spiWriteBuf(regRxAddrP0+pipe, address[:width]); err != nil {
				return err
			}
		}
	} else {
		if err := d.spiWriteByte(regRxAddrP0+pipe, address[0]); err != nil {
			return err
		}
	}

	if err := d.spiRead(1, regEnRxAddr); err != nil {
		return err
	}
	return d.spiWriteByte(regEnRxAddr, d.scratch[1]|(1<<pipe))
}

// CloseRxPipe disables the given pipe (0-5). If pipe 0 is closed, the
// cached pipe-0 address is discarded so AsRx closes pipe 0 rather than
// restoring it. Out-of-range pipe numbers are a no-op.
func (d *Device) CloseRxPipe(pipe byte) error {
	if pipe >= pipeCount {
		return nil
	}
	if err := d.spiRead(1, regEnRxAddr); err != nil {
		return err
	}
	if err := d.spiWriteByte(regEnRxAddr, d.scratch[1]&^(1<<pipe)); err != nil {
		return err
	}
	if pipe == 0 {
		d.pipe0RxAddr = nil
	}
	return nil
}

// IsRxPipeEnabled reads EN_RXADDR and reports whether the given pipe's bit
// is set.
func (d *Device) IsRxPipeEnabled(pipe byte) (bool, error) {
	if pipe >= pipeCount {
		return false, nil
	}
	if err := d.spiRead(1, regEnRxAddr); err != nil {
		return false, err
	}
	return d.scratch[1]&(1<<pipe) != 0, nil
}

// SetAddressLength sets the address width, clamped to [2, 5].
func (d *Device) SetAddressLength(length byte) error {
	width := clampByte(length, 2, 5)
	if err := d.spiWriteByte(regSetupAW, width-2); err != nil {
		return err
	}
	d.feature.addressLength = width
	return nil
}

// GetAddressLength reads SETUP_AW and refreshes the cached address length.
func (d *Device) GetAddressLength() (byte, error) {
	if err := d.spiRead(1, regSetupAW); err != nil {
		return 0, err
	}
	length := d.scratch[1] + 2
	d.feature.addressLength = length
	return length, nil
}

// --- Mode transitions --------------------------------------------------

// AsRx configures the radio as a primary receiver, raises CE, and either
// restores the cached pipe-0 RX address or leaves pipe 0 closed.
func (d *Device) AsRx() error {
	d.config = d.config.withRx(true)
	if err := d.spiWriteByte(regConfig, byte(d.config)); err != nil {
		return err
	}
	if err := d.ClearStatusFlags(true, true, true); err != nil {
		return err
	}
	if err := d.setCE(true); err != nil {
		return err
	}
	if d.pipe0RxAddr != nil {
		return d.OpenRxPipe(0, d.pipe0RxAddr[:])
	}
	return d.CloseRxPipe(0)
}

// AsTx configures the radio as a transmitter (standby-II until CE goes
// high). If txAddress is non-nil it replaces the stored TX address and is
// written to TX_ADDR. In all cases the current TX address is unconditionally
// written to RX_ADDR_P0, even when no new address was supplied, so auto-ACK
// replies land on pipe 0 -- this mirrors an upstream quirk. Pipe 0 is then
// opened in EN_RXADDR.
func (d *Device) AsTx(txAddress []byte) error {
	if err := d.setCE(false); err != nil {
		return err
	}
	d.delayNs(d.txDelay * 1000)

	if d.ackPayloads {
		if err := d.FlushTX(); err != nil {
			return err
		}
	}

	d.config = d.config.withRx(false)
	if err := d.spiWriteByte(regConfig, byte(d.config)); err != nil {
		return err
	}

	width := int(d.feature.addressLength)
	if width > len(d.txAddress) {
		width = len(d.txAddress)
	}

	if txAddress != nil {
		n := len(txAddress)
		if n > width {
			n = width
		}
		copy(d.txAddress[:n], txAddress[:n])

		if err := d.spiWriteBuf(regTxAddr, d.txAddress[:width]); err != nil {
			return err
		}
	}

	if err := d.spiWriteBuf(regRxAddrP0, d.txAddress[:width]); err != nil {
		return err
	}

	if err := d.spiRead(1, regEnRxAddr); err != nil {
		return err
	}
	return d.spiWriteByte(regEnRxAddr, d.scratch[1]|1)
}

// --- Payload transmission -----------------------------------------------

// Send blocks until the packet is acknowledged (or retries are exhausted).
// It flushes TX, writes the payload with CE immediately raised, waits the
// datasheet's minimum CE-high duration, then polls STATUS until tx_ds or
// tx_df appears. It returns whether tx_ds was set (successful delivery, or
// always true if ask_no_ack suppressed ACK tracking for that packet).
func (d *Device) Send(buf []byte, askNoAck bool) (bool, error) {
	if err := d.setCE(false); err != nil {
		return false, err
	}
	if err := d.FlushTX(); err != nil {
		return false, err
	}
	ok, err := d.Write(buf, askNoAck, true)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	d.delayNs(10_000)
	for !d.status.txDs() && !d.status.txDf() {
		if err := d.spiRead(0, commandNop); err != nil {
			return false, err
		}
	}
	return d.status.txDs(), nil
}

// Write stages a payload into the TX FIFO without waiting for delivery.
// It fails with ErrNotTransmitting if the radio is configured as a
// receiver. If dynamic payloads are disabled and buf is shorter than the
// configured static payload length, the remainder is zero-padded. If
// startTx is true, CE is raised after the SPI write. Returns whether the
// TX FIFO was not full immediately afterward.
func (d *Device) Write(buf []byte, askNoAck, startTx bool) (bool, error) {
	if d.config.isRx() {
		return false, fmt.Errorf("nrf24: write while in rx mode: %w", ErrNotTransmitting)
	}
	if err := d.ClearStatusFlags(false, true, true); err != nil {
		return false, err
	}

	command := byte(commandWTxPayload)
	if askNoAck {
		command = commandWTxPayloadNoAck
	}

	n := len(buf)
	if n > 32 {
		n = 32
	}
	d.scratch[0] = command
	copy(d.scratch[1:n+1], buf[:n])

	total := n
	if !d.feature.dynamicPayloads() && n < int(d.payloadLength) {
		for i := n; i < int(d.payloadLength); i++ {
			d.scratch[i+1] = 0
		}
		total = int(d.payloadLength)
	}

	if err := d.spiTransfer(total + 1); err != nil {
		return false, err
	}

	if startTx {
		if err := d.setCE(true); err != nil {
			return false, err
		}
	}
	return !d.status.txFull(), nil
}

// Resend reissues the last TX FIFO payload via REUSE_TX_PL and waits for
// tx_ds or tx_df, returning whether tx_ds was set. It fails silently
// (returns false, nil) if the radio is in RX mode.
func (d *Device) Resend() (bool, error) {
	if d.config.isRx() {
		return false, nil
	}
	if err := d.Rewrite(); err != nil {
		return false, err
	}
	d.delayNs(10_000)
	for !d.status.txDs() && !d.status.txDf() {
		if err := d.spiRead(0, commandNop); err != nil {
			return false, err
		}
	}
	return d.status.txDs(), nil
}

// Rewrite clears tx_ds/tx_df, issues REUSE_TX_PL, and pulses CE low then
// high to retransmit the current TX FIFO contents.
func (d *Device) Rewrite() error {
	if err := d.ClearStatusFlags(false, true, true); err != nil {
		return err
	}
	if err := d.setCE(false); err != nil {
		return err
	}
	if err := d.spiRead(0, commandReuseTxPl); err != nil {
		return err
	}
	return d.setCE(true)
}

// GetLastArc reads OBSERVE_TX and returns the lost-packet count (reset on
// channel change) and the retry count for the most recent transmission.
func (d *Device) GetLastArc() (lost, retries byte, err error) {
	if err = d.spiRead(1, regObserveTX); err != nil {
		return 0, 0, err
	}
	v := d.scratch[1]
	return (v >> 4) & 0xF, v & 0xF, nil
}

// --- Payload reception ---------------------------------------------------

// Available reports whether a payload is waiting in the RX FIFO.
func (d *Device) Available() (bool, error) {
	pipe, err := d.AvailablePipe()
	if err != nil {
		return false, err
	}
	return pipe != 7, nil
}

// AvailablePipe returns the pipe number (0-5) holding the next available
// payload, or 7 if the RX FIFO is empty.
func (d *Device) AvailablePipe() (byte, error) {
	if err := d.spiRead(0, commandNop); err != nil {
		return 7, err
	}
	return d.status.rxPipe(), nil
}

// Read fetches the next RX FIFO payload into buf. If length is nil, the
// read length is the dynamic payload length (if enabled) or the static
// payload length, clamped to len(buf) and to 32. A zero-length read is a
// no-op that returns 0. Reading past a short dynamic payload repeats the
// last byte (a documented hardware quirk, not masked here).
func (d *Device) Read(buf []byte, length *byte) (int, error) {
	n := int(d.payloadLength)
	if d.feature.dynamicPayloads() && length == nil {
		dyn, err := d.GetDynamicPayloadLength()
		if err != nil {
			return 0, err
		}
		n = int(dyn)
	} else if length != nil {
		n = int(*length)
	}
	if n > len(buf) {
		n = len(buf)
	}
	if n > 32 {
		n = 32
	}
	if n == 0 {
		return 0, nil
	}

	d.scratch[0] = commandRRxPayload
	for i := 1; i <= n; i++ {
		d.scratch[i] = commandNop
	}
	if err := d.spiTransfer(n + 1); err != nil {
		return 0, err
	}
	copy(buf, d.scratch[1:n+1])

	d.status = d.status.withRxDr(false)
	if err := d.spiWriteByte(regStatus, statusRxDR); err != nil {
		return 0, err
	}
	return n, nil
}

// GetDynamicPayloadLength issues R_RX_PL_WID. A reported length over 32 is
// impossible and indicates line noise; the RX FIFO is flushed and
// ErrBinaryCorruption is returned, per the datasheet's recovery recipe.
func (d *Device) GetDynamicPayloadLength() (byte, error) {
	if err := d.spiRead(1, commandRRxPlWid); err != nil {
		return 0, err
	}
	length := d.scratch[1]
	if length > 32 {
		if err := d.FlushRX(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("nrf24: dynamic payload length %d exceeds 32: %w", length, ErrBinaryCorruption)
	}
	return length, nil
}

// --- Status flags --------------------------------------------------------

// Update issues a NOP, refreshing the cached status byte.
func (d *Device) Update() error { return d.spiRead(0, commandNop) }

// GetStatusFlags returns the three writable IRQ causes from the cached
// status byte.
func (d *Device) GetStatusFlags() (rxDr, txDs, txDf bool) {
	return d.status.rxDr(), d.status.txDs(), d.status.txDf()
}

// SetStatusFlags writes CONFIG with the IRQ masks inverted relative to
// each flag's truthiness (hardware uses 1 = masked/ignored).
func (d *Device) SetStatusFlags(rxDr, txDs, txDf bool) error {
	d.config = d.config.
		withMaskRxDr(!rxDr).
		withMaskTxDs(!txDs).
		withMaskTxDf(!txDf)
	return d.spiWriteByte(regConfig, byte(d.config))
}

// ClearStatusFlags writes STATUS with a 1 bit for each flag to clear
// (hardware clears a status bit by writing 1 to it).
func (d *Device) ClearStatusFlags(rxDr, txDs, txDf bool) error {
	var v byte
	if rxDr {
		v |= statusRxDR
	}
	if txDs {
		v |= statusTxDS
	}
	if txDf {
		v |= statusMaxRT
	}
	return d.spiWriteByte(regStatus, v)
}

// FifoStatus reads FIFO_STATUS and returns the derived RX and TX FIFO
// occupancy states.
func (d *Device) FifoStatus() (rx, tx FifoState, err error) {
	if err = d.spiRead(1, regFifoStatus); err != nil {
		return 0, 0, err
	}
	v := d.scratch[1]
	return fifoStateFromBits(v, fifoRxEmpty, fifoRxFull),
		fifoStateFromBits(v, fifoTxEmpty, fifoTxFull), nil
}

// FlushTX clears the TX FIFO.
func (d *Device) FlushTX() error { return d.spiRead(0, commandFlushTX) }

// FlushRX clears the RX FIFO.
func (d *Device) FlushRX() error { return d.spiRead(0, commandFlushRX) }

// --- Other setters -------------------------------------------------------

// SetChannel writes RF_CH, clamped to [0, 125].
func (d *Device) SetChannel(channel byte) error {
	return d.spiWriteByte(regRFCh, clampByte(channel, 0, 125))
}

// GetChannel reads RF_CH.
func (d *Device) GetChannel() (byte, error) {
	if err := d.spiRead(1, regRFCh); err != nil {
		return 0, err
	}
	return d.scratch[1], nil
}

// SetPaLevel updates the PA-level bits of RF_SETUP, preserving every other
// bit (data rate, LNA, and the carrier-wave CONT_WAVE/PLL_LOCK bits).
func (d *Device) SetPaLevel(level PaLevel) error {
	if err := d.spiRead(1, regRFSetup); err != nil {
		return err
	}
	return d.spiWriteByte(regRFSetup, d.scratch[1]&^0x06|(byte(level)&0x3)<<1)
}

// SetLna enables or disables the builtin LNA feature. Has no effect on
// plus-variant/PA+LNA modules, where LNA is always enabled.
func (d *Device) SetLna(enable bool) error {
	if err := d.spiRead(1, regRFSetup); err != nil {
		return err
	}
	return d.spiWriteByte(regRFSetup, setBit(d.scratch[1], 1, enable))
}

// SetDataRate updates the data-rate bits of RF_SETUP, preserving the
// orthogonal PA-level and LNA bits, and recomputes txDelay.
func (d *Device) SetDataRate(rate DataRate) error {
	if err := d.spiRead(1, regRFSetup); err != nil {
		return err
	}
	pa := paLevelFromBits(d.scratch[1])
	lna := d.scratch[1]&1 != 0
	if err := d.spiWriteByte(regRFSetup, rfSetupBits(rate, pa, lna)); err != nil {
		return err
	}
	d.txDelay = txDelayMicros(rate)
	return nil
}

// SetCrcLength updates the CRC bits of CONFIG.
func (d *Device) SetCrcLength(length CrcLength) error {
	d.config = d.config.withCrc(length)
	return d.spiWriteByte(regConfig, byte(d.config))
}

// SetPayloadLength sets the static payload length used for pipes 0-5 when
// dynamic payloads are disabled.
func (d *Device) SetPayloadLength(length byte) error {
	d.payloadLength = clampByte(length, 1, 32)
	for p := byte(0); p < pipeCount; p++ {
		if err := d.spiWriteByte(regRxPwP0+p, d.payloadLength); err != nil {
			return err
		}
	}
	return nil
}

// --- Auto-ack / ACK payloads ----------------------------------------------

// SetAutoAck enables or disables auto-ack on all pipes. Disabling it also
// disables ACK payloads if they were on.
func (d *Device) SetAutoAck(enable bool) error {
	var v byte
	if enable {
		v = 0x3F
	}
	d.autoAck = enable
	if err := d.spiWriteByte(regEnAA, v); err != nil {
		return err
	}
	if !enable && d.feature.ackPayloads() {
		return d.SetAckPayloads(false)
	}
	return nil
}

// SetAutoAckPipe enables or disables auto-ack for a single pipe (0-5);
// out-of-range pipe numbers are a no-op. Disabling pipe 0 while ACK
// payloads are enabled disables ACK payloads first.
func (d *Device) SetAutoAckPipe(enable bool, pipe byte) error {
	if pipe >= pipeCount {
		return nil
	}
	if err := d.spiRead(1, regEnAA); err != nil {
		return err
	}
	current := d.scratch[1]
	if !enable && d.feature.ackPayloads() && pipe == 0 {
		if err := d.SetAckPayloads(false); err != nil {
			return err
		}
	}
	mask := byte(1) << pipe
	return d.spiWriteByte(regEnAA, setBit(current, mask, enable))
}

// SetAutoRetries sets the auto-retry delay (units of 250us) and count,
// each clamped to [0, 15].
func (d *Device) SetAutoRetries(delay, count byte) error {
	delay = clampByte(delay, 0, 15)
	count = clampByte(count, 0, 15)
	return d.spiWriteByte(regSetupRetr, (delay<<4)|count)
}

// SetAckPayloads enables or disables piggy-backed ACK payloads. Enabling
// it also enables dynamic payloads on all pipes via DYNPD=0x3F.
func (d *Device) SetAckPayloads(enable bool) error {
	if d.feature.ackPayloads() == enable {
		return nil
	}
	if err := d.spiRead(1, regFeature); err != nil {
		return err
	}
	d.feature.bits = d.scratch[1]
	d.feature = d.feature.withAckPayloads(enable)
	if enable {
		d.feature = d.feature.withDynamicPayloads(true)
	}
	d.ackPayloads = enable
	if err := d.spiWriteByte(regFeature, d.feature.bits); err != nil {
		return err
	}
	if enable {
		return d.spiWriteByte(regDynpd, 0x3F)
	}
	return nil
}

// GetAckPayloads reports whether ACK payloads are currently enabled in the
// cached feature shadow.
func (d *Device) GetAckPayloads() bool { return d.feature.ackPayloads() }

// AllowAskNoAck enables or disables the EN_DYN_ACK feature bit, which
// allows individual payloads to opt out of auto-ack via askNoAck.
func (d *Device) AllowAskNoAck(enable bool) error {
	if err := d.spiRead(1, regFeature); err != nil {
		return err
	}
	return d.spiWriteByte(regFeature, setBit(d.scratch[1], maskEnDynAck, enable))
}

// WriteAckPayload stages a payload to piggy-back on the next auto-ACK for
// the given pipe. Returns false without error if ACK payloads are disabled
// or pipe is out of range; otherwise returns whether the TX FIFO was not
// full immediately afterward.
func (d *Device) WriteAckPayload(pipe byte, buf []byte) (bool, error) {
	if !d.feature.ackPayloads() || pipe > 5 {
		return false, nil
	}
	n := len(buf)
	if n > 32 {
		n = 32
	}
	if err := d.spiWriteBuf(commandWAckPayload|pipe, buf[:n]); err != nil {
		return false, err
	}
	return !d.status.txFull(), nil
}

// --- Carrier wave ----------------------------------------------------------

// Rpd reads the Received Power Detector bit, a cheap carrier-sense signal.
func (d *Device) Rpd() (bool, error) {
	if err := d.spiRead(1, regRPD); err != nil {
		return false, err
	}
	return d.scratch[1]&1 == 1, nil
}

// StartCarrierWave puts the radio into an unmodulated constant-carrier
// test mode at the given PA level and channel. On plus-variant silicon,
// auto-ack and auto-retries are disabled, a 5-byte 0xFF TX address bypasses
// normal address-length truncation, a 32-byte 0xFF payload is queued, and
// CRC is disabled; the mode is then kept alive via REUSE_TX_PL.
func (d *Device) StartCarrierWave(level PaLevel, channel byte) error {
	if err := d.AsTx(nil); err != nil {
		return err
	}
	if err := d.spiRead(1, regRFSetup); err != nil {
		return err
	}
	if err := d.spiWriteByte(regRFSetup, d.scratch[1]|0x90); err != nil {
		return err
	}

	if d.feature.isPlusVariant {
		if err := d.SetAutoAck(false); err != nil {
			return err
		}
		if err := d.SetAutoRetries(0, 0); err != nil {
			return err
		}
		full := [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
		if err := d.spiWriteBuf(regTxAddr, full[:]); err != nil {
			return err
		}
		if err := d.FlushTX(); err != nil {
			return err
		}
		var payload [32]byte
		for i := range payload {
			payload[i] = 0xFF
		}
		if err := d.spiWriteBuf(commandWTxPayload, payload[:]); err != nil {
			return err
		}
		if err := d.SetCrcLength(CrcDisabled); err != nil {
			return err
		}
	}

	if err := d.SetPaLevel(level); err != nil {
		return err
	}
	if err := d.SetChannel(channel); err != nil {
		return err
	}
	if err := d.setCE(true); err != nil {
		return err
	}

	if d.feature.isPlusVariant {
		d.delayNs(1_000_000)
		return d.Rewrite()
	}
	return nil
}

// StopCarrierWave exits carrier-wave mode: powers down (per datasheet
// recommendation), clears CONT_WAVE/PLL_LOCK, and drives CE low.
func (d *Device) StopCarrierWave() error {
	d.config = d.config.withPwrUp(false)
	if err := d.spiWriteByte(regConfig, byte(d.config)); err != nil {
		return err
	}
	if err := d.spiRead(1, regRFSetup); err != nil {
		return err
	}
	if err := d.spiWriteByte(regRFSetup, d.scratch[1]&^byte(0x90)); err != nil {
		return err
	}
	return d.setCE(false)
}

// --- Receive helpers -------------------------------------------------------

// WaitForInterrupt blocks until the IRQ pin goes low (active) or ctx is
// cancelled, returning the STATUS register value observed at that point.
// Fails if no IRQ pin was configured.
func (d *Device) WaitForInterrupt(ctx context.Context) (byte, error) {
	if d.irq == nil {
		return 0, fmt.Errorf("nrf24: IRQ pin not configured")
	}
	if d.irq.Read() == Low {
		if err := d.spiRead(1, regStatus); err != nil {
			return 0, err
		}
		return d.scratch[1], nil
	}
	select {
	case <-d.irqChan:
		if err := d.spiRead(1, regStatus); err != nil {
			return 0, err
		}
		return d.scratch[1], nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ReceiveBlocking waits for a payload to arrive or for ctx to be cancelled,
// preferring IRQ-driven wakeups when an IRQ pin is configured and falling
// back to polling otherwise.
func (d *Device) ReceiveBlocking(ctx context.Context, buf []byte) (int, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		available, err := d.Available()
		if err != nil {
			return 0, err
		}
		if available {
			return d.Read(buf, nil)
		}

		if d.irq != nil {
			status, err := d.WaitForInterrupt(ctx)
			if err != nil {
				return 0, err
			}
			if status&statusRxDR != 0 {
				continue
			}
			if err := d.ClearStatusFlags(false, status&statusTxDS != 0, status&statusMaxRT != 0); err != nil {
				return 0, err
			}
		} else {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
			d.delayNs(5_000_000)
		}
	}
}

// Close powers the radio down and releases the SPI port (if the platform
// adapter registered one) and the IRQ watch.
func (d *Device) Close() error {
	d.config = d.config.withPwrUp(false)
	if err := d.spiWriteByte(regConfig, byte(d.config)); err != nil {
		globalLogger.Warn("nrf24: power-down on close failed")
	}
	if d.irq != nil {
		if err := d.irq.Unwatch(); err != nil {
			globalLogger.Warn("nrf24: unwatch IRQ on close failed")
		}
	}
	if d.nrfPort != nil {
		return d.nrfPort.Close()
	}
	return nil
}
