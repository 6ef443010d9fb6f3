package nrf24

import "fmt"

// blePduHeader is the PDU-type byte used for every fake-BLE advertisement
// this package emits.
const blePduHeader = 0x42

// bleTxAddress is the fixed 4-byte pipe-1/TX address used for fake BLE
// advertising. Chosen because after whitening and bit-reversal it
// resembles BLE's preamble+access-address framing.
var bleTxAddress = [4]byte{0x71, 0x91, 0x7d, 0x6b}

const (
	bleNameChunkType     = 0x08
	bleTxPowerChunkType  = 0x0A
	bleFlagsChunkType    = 0x01
	bleMaxFrameLen       = 27 // largest payload-length byte: header, length, 27 bytes and the CRC fill 32 bytes
	bleMaxNameLen        = 10
)

// FakeBle is an approximation of BLE advertising layered on top of a
// Device: it builds, sends and decodes advertisements on the three BLE
// advertising channels only, with a size-limited PDU. It is not
// protocol-conformant.
type FakeBle struct {
	radio *Device

	// Name is the advertised device name (up to 10 bytes), or nil to omit
	// the name chunk.
	Name []byte
	// Mac is the advertised 6-byte MAC address.
	Mac [6]byte
	// ShowPaLevel includes a TX-power chunk derived from the radio's
	// current PA level when true.
	ShowPaLevel bool
}

// NewFakeBle wraps radio with a fake-BLE facade. radio must outlive the
// returned FakeBle; only one facade per radio is expected.
func NewFakeBle(radio *Device, mac [6]byte) *FakeBle {
	return &FakeBle{radio: radio, Mac: mac}
}

// BleConfig returns a RadioConfig suited to fake BLE advertising: channel
// 2, CRC disabled (the BLE CRC-24 is computed in software instead), no
// auto-ack/auto-retries, 4-byte addresses, and pipe 1 plus the TX address
// both set to the fixed BLE framing address.
func BleConfig() RadioConfig {
	cfg := DefaultRadioConfig().
		WithChannel(2).
		WithCrcLength(CrcDisabled).
		WithAddressLength(4).
		WithAutoRetries(0, 0).
		WithTxAddress(bleTxAddress[:]).
		WithRxAddress(1, bleTxAddress[:])
	for p := byte(0); p < pipeCount; p++ {
		cfg = cfg.WithAutoAckPipe(p, false)
	}
	return cfg
}

// LenAvailable returns how many bytes of user service data could still be
// added to an advertisement with the given hypothetical name length,
// accounting for whether the PA-level chunk would be included. Negative
// values mean the frame would not fit and broadcasting would fail.
func (b *FakeBle) LenAvailable(hypotheticalNameLen int) int {
	overhead := 0
	if hypotheticalNameLen > 0 {
		overhead += 2 + hypotheticalNameLen
	}
	if b.ShowPaLevel {
		overhead += 3
	}
	return 18 - overhead
}

// MakePayload assembles a 32-byte fake-BLE advertisement: header, length,
// MAC, profile flags, an optional TX-power chunk, an optional name chunk,
// user-supplied service data, and a 3-byte CRC-24 -- then whitens and
// bit-reverses the occupied region using channel's whitening coefficient.
// Returns false if the payload-length byte would exceed 27 (the frame and
// its CRC would not fit in 32 bytes), or if channel is not one of the three
// advertising channels.
func (b *FakeBle) MakePayload(userData []byte, paLevel *PaLevel, channel byte) ([32]byte, bool) {
	var out [32]byte

	coeff, ok := bleChannelCoefficient(channel)
	if !ok {
		return out, false
	}

	frame := make([]byte, 0, bleMaxFrameLen+3)
	frame = append(frame, blePduHeader, 0) // header, length placeholder
	frame = append(frame, b.Mac[:]...)
	frame = append(frame, 2, bleFlagsChunkType, 0x05)

	if paLevel != nil {
		frame = append(frame, 2, bleTxPowerChunkType, byte(paLevel.dbm()))
	}

	if len(b.Name) > 0 {
		name := b.Name
		if len(name) > bleMaxNameLen {
			name = name[:bleMaxNameLen]
		}
		frame = append(frame, byte(1+len(name)), bleNameChunkType)
		frame = append(frame, name...)
	}

	frame = append(frame, userData...)

	bodyLen := len(frame) - 2 // everything after header+length
	if bodyLen > bleMaxFrameLen {
		globalLogger.Warn("nrf24: ble payload too large, dropping")
		return out, false
	}
	frame[1] = byte(bodyLen)

	crc := crc24(frame)
	frame = append(frame, crc[:]...)

	whiten(frame, coeff)
	reverseBits(frame)

	copy(out[:], frame)
	return out, true
}

// Send assembles and transmits a fake-BLE advertisement on the radio's
// current channel, using the radio's current PA level if ShowPaLevel is
// set. Auto-ack is explicitly disabled for the transmission (ask_no_ack).
func (b *FakeBle) Send(userData []byte) error {
	channel, err := b.radio.GetChannel()
	if err != nil {
		return err
	}

	var pa *PaLevel
	if b.ShowPaLevel {
		if err := b.radio.spiRead(1, regRFSetup); err != nil {
			return err
		}
		level := paLevelFromBits(b.radio.scratch[1])
		pa = &level
	}

	payload, ok := b.MakePayload(userData, pa, channel)
	if !ok {
		return fmt.Errorf("nrf24: ble payload too large")
	}

	if err := b.radio.AsTx(nil); err != nil {
		return err
	}
	ok, err = b.radio.Send(payload[:], true)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nrf24: ble send did not complete")
	}
	return nil
}

// HopChannel advances the radio to the next channel in the BLE hop table
// (2 -> 26 -> 80 -> 2); if the radio's current channel is not one of the
// three, this is a no-op.
func (b *FakeBle) HopChannel() error {
	current, err := b.radio.GetChannel()
	if err != nil {
		return err
	}
	for i, c := range bleChannels {
		if c == current {
			next := bleChannels[(i+1)%len(bleChannels)]
			return b.radio.SetChannel(next)
		}
	}
	return nil
}

// BlePayload is the decoded result of Read: the advertiser's MAC address
// plus whichever recognized chunks were present.
type BlePayload struct {
	Mac        [6]byte
	Name       []byte
	HasTxPower bool
	TxPower    int8
	Battery    *BatteryService
	Temperature *TemperatureService
	Url         *UrlService
}

// Read fetches a 32-byte RX payload, reverses and dewhitens it using the
// radio's current channel, validates the CRC-24, and decodes the
// recognized GATT chunk types (0x08/0x09 name, 0x0A TX power, 0x16
// service data dispatched by UUID). Returns false if the payload-length
// byte claims more than 27 bytes or if the CRC check fails; unrecognized
// chunk types are silently dropped.
func (b *FakeBle) Read() (BlePayload, bool, error) {
	var raw [32]byte
	n, err := b.radio.Read(raw[:], nil)
	if err != nil {
		return BlePayload{}, false, err
	}
	if n == 0 {
		return BlePayload{}, false, nil
	}

	channel, err := b.radio.GetChannel()
	if err != nil {
		return BlePayload{}, false, err
	}
	return b.decodeFrame(raw[:n], channel)
}

// decodeFrame applies the inverse bit-reversal and whitening for channel
// to a raw RX buffer, validates its CRC-24, and decodes the recognized
// GATT chunk types. Split out from Read so the decode logic can be
// exercised without a live Device.
func (b *FakeBle) decodeFrame(raw []byte, channel byte) (BlePayload, bool, error) {
	coeff, ok := bleChannelCoefficient(channel)
	if !ok {
		return BlePayload{}, false, nil
	}

	frame := append([]byte(nil), raw...)
	reverseBits(frame)
	whiten(frame, coeff)

	if len(frame) < 2 || frame[1] > 27 {
		return BlePayload{}, false, nil
	}
	bodyLen := int(frame[1])
	total := 2 + bodyLen
	if total+3 > len(frame) {
		return BlePayload{}, false, nil
	}

	body := frame[:total]
	gotCRC := frame[total : total+3]
	wantCRC := crc24(body)
	if gotCRC[0] != wantCRC[0] || gotCRC[1] != wantCRC[1] || gotCRC[2] != wantCRC[2] {
		return BlePayload{}, false, nil
	}

	var out BlePayload
	if len(body) < 8 {
		return BlePayload{}, false, nil
	}
	copy(out.Mac[:], body[2:8])

	rest := body[8:]
	for len(rest) > 0 {
		chunkLen := int(rest[0])
		if chunkLen == 0 || chunkLen+1 > len(rest) {
			break
		}
		chunkType := rest[1]
		value := rest[2 : chunkLen+1]
		switch chunkType {
		case bleNameChunkType, 0x09:
			out.Name = append([]byte(nil), value...)
		case bleTxPowerChunkType:
			if len(value) >= 1 {
				out.HasTxPower = true
				out.TxPower = int8(value[0])
			}
		case gattServiceData:
			serviceChunk := rest[:chunkLen+1]
			if len(serviceChunk) >= 4 {
				uuid := uint16(serviceChunk[2]) | uint16(serviceChunk[3])<<8
				switch uuid {
				case uuidBattery:
					if svc, _, err := ParseBatteryService(serviceChunk); err == nil {
						out.Battery = &svc
					}
				case uuidTemperature:
					if svc, _, err := ParseTemperatureService(serviceChunk); err == nil {
						out.Temperature = &svc
					}
				case uuidEddystone:
					if svc, _, err := ParseUrlService(serviceChunk); err == nil {
						out.Url = &svc
					}
				}
			}
		}
		rest = rest[chunkLen+1:]
	}

	return out, true, nil
}
