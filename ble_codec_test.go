package nrf24

import (
	"bytes"
	"testing"
)

func TestWhitenIsSelfInverse(t *testing.T) {
	for _, ch := range bleChannels {
		coeff, ok := bleChannelCoefficient(ch)
		if !ok {
			t.Fatalf("channel %d should be a valid advertising channel", ch)
		}
		original := []byte{0x42, 0x00, 0x6E, 0x52, 0x46, 0x32, 0x34, 0x4C}
		buf := append([]byte(nil), original...)

		whiten(buf, coeff)
		if bytes.Equal(buf, original) {
			t.Errorf("whiten(channel %d) should change the buffer", ch)
		}
		whiten(buf, coeff)
		if !bytes.Equal(buf, original) {
			t.Errorf("whiten(whiten(b)) != b for channel %d: got %X, want %X", ch, buf, original)
		}
	}
}

func TestBleChannelCoefficientRejectsUnknownChannel(t *testing.T) {
	if _, ok := bleChannelCoefficient(76); ok {
		t.Error("channel 76 is not a BLE advertising channel")
	}
}

func TestReverseBitsIsSelfInverse(t *testing.T) {
	original := []byte{0x01, 0x80, 0xFF, 0x00, 0x55, 0xAA}
	buf := append([]byte(nil), original...)

	reverseBits(buf)
	reverseBits(buf)
	if !bytes.Equal(buf, original) {
		t.Errorf("reverseBits(reverseBits(b)) != b: got %X, want %X", buf, original)
	}
}

func TestReverseByteKnownValues(t *testing.T) {
	cases := map[byte]byte{
		0x01: 0x80,
		0x80: 0x01,
		0xFF: 0xFF,
		0x00: 0x00,
		0b0000_0011: 0b1100_0000,
	}
	for in, want := range cases {
		if got := reverseByte(in); got != want {
			t.Errorf("reverseByte(%#08b) = %#08b, want %#08b", in, got, want)
		}
	}
}

func TestCrc24Deterministic(t *testing.T) {
	buf := []byte{0x42, 0x16, 0x6E, 0x52, 0x46, 0x32, 0x34, 0x4C}
	a := crc24(buf)
	b := crc24(buf)
	if a != b {
		t.Errorf("crc24 should be deterministic: got %X and %X", a, b)
	}
}

func TestCrc24DetectsSingleBitFlip(t *testing.T) {
	buf := []byte{0x42, 0x16, 0x6E, 0x52, 0x46, 0x32, 0x34, 0x4C}
	want := crc24(buf)

	for i := range buf {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), buf...)
			flipped[i] ^= 1 << bit
			if crc24(flipped) == want {
				t.Errorf("single-bit flip at byte %d bit %d was not detected by CRC-24", i, bit)
			}
		}
	}
}
