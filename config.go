package nrf24

// pipeCount is the number of hardware RX pipes (0-5) the nRF24L01 exposes.
const pipeCount = 6

// RadioConfig is an immutable description of a complete desired radio
// state. It is cheap to copy and never shared mutably: every With* method
// returns a modified copy, so a caller can derive variants from a shared
// base without aliasing surprises.
//
// The zero value is not meaningful; use DefaultRadioConfig.
type RadioConfig struct {
	channel             byte
	payloadLength       byte
	addressLength       byte
	crcLength           CrcLength
	dataRate            DataRate
	paLevel             PaLevel
	lna                 bool
	dynamicPayloads     bool
	ackPayloads         bool
	askNoAck            bool
	autoAckMask         byte // bit per pipe 0-5
	autoRetryDelay      byte // 0-15, each unit = 250us
	autoRetryCount      byte // 0-15
	irqRxDr             bool
	irqTxDs             bool
	irqTxDf             bool
	txAddress           [5]byte
	rxAddresses         [pipeCount][5]byte
	openPipes           byte // bit per pipe 0-5
}

// DefaultRadioConfig returns the documented out-of-the-box configuration:
// channel 76, 5-byte addresses, PA Max with LNA on, 16-bit CRC, 1Mbps,
// static 32-byte payloads, auto-ack on pipes 0-5, 15 retries at 1500us,
// pipe 1 open with address 0xC2 repeated, pipes 2-5 distinguished by
// 0xC3..0xC6, all IRQs unmasked.
func DefaultRadioConfig() RadioConfig {
	c := RadioConfig{
		channel:        76,
		payloadLength:  32,
		addressLength:  5,
		crcLength:      Crc16,
		dataRate:       DataRate1Mbps,
		paLevel:        PaMax,
		lna:            true,
		autoAckMask:    0x3F,
		autoRetryDelay: 5,
		autoRetryCount: 15,
		irqRxDr:        true,
		irqTxDs:        true,
		irqTxDf:        true,
		openPipes:      1 << 1,
	}
	for i := range c.txAddress {
		c.txAddress[i] = 0xE7
	}
	c.rxAddresses[0] = c.txAddress
	for i := range c.rxAddresses[1] {
		c.rxAddresses[1][i] = 0xC2
	}
	for p := 2; p < pipeCount; p++ {
		c.rxAddresses[p][0] = byte(0xC3 + p - 2)
	}
	return c
}

func clampByte(v, lo, hi byte) byte {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WithChannel sets the RF channel, clamped to [0, 125].
func (c RadioConfig) WithChannel(channel byte) RadioConfig {
	c.channel = clampByte(channel, 0, 125)
	return c
}

// WithPayloadLength sets the static payload length (used when dynamic
// payloads are disabled), clamped to [1, 32].
func (c RadioConfig) WithPayloadLength(length byte) RadioConfig {
	c.payloadLength = clampByte(length, 1, 32)
	return c
}

// WithAddressLength sets the address width, clamped to [2, 5].
func (c RadioConfig) WithAddressLength(length byte) RadioConfig {
	c.addressLength = clampByte(length, 2, 5)
	return c
}

// WithCrcLength sets the CRC configuration.
func (c RadioConfig) WithCrcLength(length CrcLength) RadioConfig {
	c.crcLength = length
	return c
}

// WithDataRate sets the air data rate.
func (c RadioConfig) WithDataRate(rate DataRate) RadioConfig {
	c.dataRate = rate
	return c
}

// WithPaLevel sets the power-amplifier level.
func (c RadioConfig) WithPaLevel(level PaLevel) RadioConfig {
	c.paLevel = level
	return c
}

// WithLna enables or disables the LNA gain bit.
func (c RadioConfig) WithLna(enable bool) RadioConfig {
	c.lna = enable
	return c
}

// WithDynamicPayloads enables or disables per-packet dynamic payload
// length reporting.
func (c RadioConfig) WithDynamicPayloads(enable bool) RadioConfig {
	c.dynamicPayloads = enable
	return c
}

// WithAckPayloads enables or disables piggy-backed ACK payloads. Enabling
// it also forces dynamic payloads on and sets the auto-ack mask to all
// pipes (0xFF clamped to the 6 usable bits, 0x3F). Disabling it leaves
// dynamic payloads untouched.
func (c RadioConfig) WithAckPayloads(enable bool) RadioConfig {
	c.ackPayloads = enable
	if enable {
		c.dynamicPayloads = true
		c.autoAckMask = 0x3F
	}
	return c
}

// WithAskNoAck allows individual payloads to opt out of auto-ack via the
// W_TX_PAYLOAD_NO_ACK command.
func (c RadioConfig) WithAskNoAck(enable bool) RadioConfig {
	c.askNoAck = enable
	return c
}

// WithAutoAckPipe sets or clears the auto-ack bit for a single pipe (0-5);
// out-of-range pipe numbers are a no-op.
func (c RadioConfig) WithAutoAckPipe(pipe byte, enable bool) RadioConfig {
	if pipe >= pipeCount {
		return c
	}
	c.autoAckMask = setBit(c.autoAckMask, 1<<pipe, enable)
	return c
}

// WithAutoRetries sets the auto-retry delay (units of 250us) and count,
// each clamped to [0, 15].
func (c RadioConfig) WithAutoRetries(delay, count byte) RadioConfig {
	c.autoRetryDelay = clampByte(delay, 0, 15)
	c.autoRetryCount = clampByte(count, 0, 15)
	return c
}

// WithIrqMask sets which IRQ causes are unmasked (true = enabled / will
// assert the IRQ pin).
func (c RadioConfig) WithIrqMask(rxDr, txDs, txDf bool) RadioConfig {
	c.irqRxDr = rxDr
	c.irqTxDs = txDs
	c.irqTxDf = txDf
	return c
}

// WithTxAddress sets the TX address (up to 5 bytes; shorter slices leave
// the trailing bytes at their previous value).
func (c RadioConfig) WithTxAddress(address []byte) RadioConfig {
	n := len(address)
	if n > len(c.txAddress) {
		n = len(c.txAddress)
	}
	copy(c.txAddress[:n], address[:n])
	return c
}

// WithRxAddress sets the RX address for the given pipe and auto-opens it
// in the pipe-open mask. Pipe 0 and 1 store up to 5 bytes (the driver
// writes only the first AddressLength of them to the radio);
// pipes 2-5 only use the first (distinguishing) byte, sharing pipe 1's
// remaining bytes on the wire. Out-of-range pipe numbers are a no-op.
func (c RadioConfig) WithRxAddress(pipe byte, address []byte) RadioConfig {
	if pipe >= pipeCount || len(address) == 0 {
		return c
	}
	if pipe < 2 {
		n := len(address)
		if n > len(c.rxAddresses[pipe]) {
			n = len(c.rxAddresses[pipe])
		}
		copy(c.rxAddresses[pipe][:n], address[:n])
	} else {
		c.rxAddresses[pipe][0] = address[0]
	}
	c.openPipes |= 1 << pipe
	return c
}

// WithClosedPipe clears the pipe-open mask bit for the given pipe without
// discarding its cached address. Out-of-range pipe numbers are a no-op.
func (c RadioConfig) WithClosedPipe(pipe byte) RadioConfig {
	if pipe >= pipeCount {
		return c
	}
	c.openPipes &^= 1 << pipe
	return c
}

// Channel returns the configured RF channel.
func (c RadioConfig) Channel() byte { return c.channel }

// PayloadLength returns the configured static payload length.
func (c RadioConfig) PayloadLength() byte { return c.payloadLength }

// AddressLength returns the configured address width.
func (c RadioConfig) AddressLength() byte { return c.addressLength }

// CrcLength returns the configured CRC length.
func (c RadioConfig) CrcLength() CrcLength { return c.crcLength }

// DataRate returns the configured air data rate.
func (c RadioConfig) DataRate() DataRate { return c.dataRate }

// PaLevel returns the configured power-amplifier level.
func (c RadioConfig) PaLevel() PaLevel { return c.paLevel }

// Lna returns whether the LNA gain bit is enabled.
func (c RadioConfig) Lna() bool { return c.lna }

// DynamicPayloads returns whether dynamic payload length is enabled.
func (c RadioConfig) DynamicPayloads() bool { return c.dynamicPayloads }

// AckPayloads returns whether ACK payloads are enabled.
func (c RadioConfig) AckPayloads() bool { return c.ackPayloads }

// AskNoAck returns whether per-payload ask-no-ack is allowed.
func (c RadioConfig) AskNoAck() bool { return c.askNoAck }

// AutoAckPipe returns whether auto-ack is enabled for the given pipe.
func (c RadioConfig) AutoAckPipe(pipe byte) bool {
	if pipe >= pipeCount {
		return false
	}
	return c.autoAckMask&(1<<pipe) != 0
}

// AutoRetryDelay returns the configured retry delay (units of 250us).
func (c RadioConfig) AutoRetryDelay() byte { return c.autoRetryDelay }

// AutoRetryCount returns the configured retry count.
func (c RadioConfig) AutoRetryCount() byte { return c.autoRetryCount }

// IsRxPipeEnabled returns whether the given pipe is marked open in this
// configuration's pipe-open mask.
func (c RadioConfig) IsRxPipeEnabled(pipe byte) bool {
	if pipe >= pipeCount {
		return false
	}
	return c.openPipes&(1<<pipe) != 0
}

// TxAddress returns the configured TX address.
func (c RadioConfig) TxAddress() [5]byte { return c.txAddress }

// RxAddress returns the configured RX address bytes for the given pipe
// (only byte 0 is meaningful for pipes 2-5).
func (c RadioConfig) RxAddress(pipe byte) [5]byte {
	if pipe >= pipeCount {
		return [5]byte{}
	}
	return c.rxAddresses[pipe]
}
