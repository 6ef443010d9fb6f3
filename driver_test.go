package nrf24

import (
	"bytes"
	"testing"
)

// scenario A: init's trailing CONFIG write equals 0x0E (power-up, 16-bit
// CRC, all IRQ masks unmasked, primary-receiver clear).
func TestInitTrailingConfigByte(t *testing.T) {
	spi := &mockSPI{}
	ce := &mockPin{}
	// CONFIG readback after the power-down write must equal 0 for Init to
	// proceed; every other read gets back the bytes that were sent, since
	// the mock leaves the in-place buffer untouched once its queue is empty.
	spi.queueRx([]byte{0x00, 0x00}) // status, CONFIG value after power-down write... consumed by spiWriteByte
	spi.queueRx([]byte{0x00, 0x00}) // CONFIG readback

	d := &Device{conn: spi, ce: ce, delay: &mockDelay{}}
	for i := range d.txAddress {
		d.txAddress[i] = 0xE7
	}
	d.feature = featureReg{addressLength: 5}
	d.payloadLength = 32

	if err := d.Init(DefaultRadioConfig()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	want := []byte{commandWRegister | regConfig, 0x0E}
	if !bytes.Contains(spi.tx, want) {
		t.Errorf("expected trailing CONFIG write %X in transcript, got %X", want, spi.tx)
	}
}

// scenario B: Send with auto-ack disabled (ask_no_ack=false here means
// ack is expected, so we instead directly test Write's command opcode
// choice and zero-padding per invariant 8, plus the FLUSH_TX from Send).
func TestSendEmitsFlushThenPayload(t *testing.T) {
	d, spi, _ := newTestDevice()
	d.feature.addressLength = 5

	// queue a status byte with tx_ds set so Send's poll loop terminates
	// immediately after the payload write.
	spi.queueRx([]byte{statusTxDS}) // response to setCE-preceding FlushTX's NOP-like read
	spi.queueRx([]byte{statusTxDS}) // response to ClearStatusFlags write
	spi.queueRx([]byte{statusTxDS}) // response to the W_TX_PAYLOAD transfer
	spi.queueRx([]byte{statusTxDS}) // spare: tx_ds is already set, so Send issues no NOP poll

	ok, err := d.Send(bytes.Repeat([]byte{0x55}, 8), false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !ok {
		t.Errorf("Send() = false, want true (tx_ds was set)")
	}

	if !bytes.Contains(spi.tx, []byte{commandFlushTX}) {
		t.Errorf("expected FLUSH_TX in transcript, got %X", spi.tx)
	}
	wantPayload := append([]byte{commandWTxPayload}, bytes.Repeat([]byte{0x55}, 8)...)
	wantPayload = append(wantPayload, make([]byte, 24)...)
	if !bytes.Contains(spi.tx, wantPayload) {
		t.Errorf("expected W_TX_PAYLOAD + 24 zero-pad bytes in transcript, got %X", spi.tx)
	}
}

// invariant 8: ask_no_ack selects W_TX_PAYLOAD_NO_ACK vs W_TX_PAYLOAD.
func TestWriteSelectsNoAckOpcode(t *testing.T) {
	d, spi, _ := newTestDevice()

	if _, err := d.Write([]byte{0x01}, true, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if bytes.IndexByte(spi.tx, commandWTxPayloadNoAck) == -1 {
		t.Errorf("ask_no_ack=true should emit W_TX_PAYLOAD_NO_ACK (0xB0), got %X", spi.tx)
	}

	spi.tx = nil
	if _, err := d.Write([]byte{0x01}, false, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if bytes.IndexByte(spi.tx, commandWTxPayload) == -1 {
		t.Errorf("ask_no_ack=false should emit W_TX_PAYLOAD (0xA0), got %X", spi.tx)
	}
}

func TestWriteFailsInRxMode(t *testing.T) {
	d, _, _ := newTestDevice()
	d.config = d.config.withRx(true)

	_, err := d.Write([]byte{0x01}, false, false)
	if err == nil {
		t.Fatal("expected ErrNotTransmitting, got nil")
	}
}

// scenario C: a NOP returning status 0b0100_0010 reports pipe 1 available.
func TestAvailablePipeDecodesStatus(t *testing.T) {
	d, spi, _ := newTestDevice()
	spi.queueRx([]byte{0b0100_0010})

	pipe, err := d.AvailablePipe()
	if err != nil {
		t.Fatalf("AvailablePipe failed: %v", err)
	}
	if pipe != 1 {
		t.Errorf("AvailablePipe() = %d, want 1", pipe)
	}

	// Available issues its own NOP, which needs its own queued status.
	spi.queueRx([]byte{0b0100_0010})
	available, err := d.Available()
	if err != nil {
		t.Fatalf("Available failed: %v", err)
	}
	if !available {
		t.Error("Available() = false, want true")
	}
}

// scenario D: open_rx_pipe(0, ...) while in TX mode, followed by as_rx(),
// restores RX_ADDR_P0 and sets PRIM_RX, in order.
func TestOpenPipeZeroThenAsRxRestoresAddress(t *testing.T) {
	d, spi, ce := newTestDevice()
	addr := bytes.Repeat([]byte{0x55}, 5)

	if err := d.OpenRxPipe(0, addr); err != nil {
		t.Fatalf("OpenRxPipe failed: %v", err)
	}
	if bytes.Contains(spi.tx, []byte{commandWRegister | regRxAddrP0}) {
		t.Error("OpenRxPipe(0, ...) in TX mode should not write RX_ADDR_P0 yet")
	}

	spi.tx = nil
	if err := d.AsRx(); err != nil {
		t.Fatalf("AsRx failed: %v", err)
	}
	if ce.level != High {
		t.Error("AsRx should raise CE")
	}

	wantAddrWrite := append([]byte{commandWRegister | regRxAddrP0}, addr...)
	if !bytes.Contains(spi.tx, wantAddrWrite) {
		t.Errorf("expected RX_ADDR_P0 restore write in transcript, got %X", spi.tx)
	}

	configIdx := bytes.Index(spi.tx, []byte{commandWRegister | regConfig})
	addrIdx := bytes.Index(spi.tx, wantAddrWrite)
	if configIdx == -1 || addrIdx == -1 || configIdx > addrIdx {
		t.Errorf("expected CONFIG write before RX_ADDR_P0 restore, got transcript %X", spi.tx)
	}
}

// AsTx(nil) -- the path FakeBle.Send exercises -- must not emit a TX_ADDR
// write, only the unconditional RX_ADDR_P0 write, and both are truncated to
// the configured address length.
func TestAsTxWithNilAddressSkipsTxAddrWrite(t *testing.T) {
	d, spi, _ := newTestDevice()
	d.feature.addressLength = 4
	copy(d.txAddress[:], []byte{0x71, 0x91, 0x7d, 0x6b, 0xAA})

	spi.queueRx([]byte{0, 0x02}) // consumed by the first transfer inside AsTx (the CONFIG write)
	if err := d.AsTx(nil); err != nil {
		t.Fatalf("AsTx failed: %v", err)
	}

	if bytes.Contains(spi.tx, []byte{commandWRegister | regTxAddr}) {
		t.Error("AsTx(nil) should not write TX_ADDR")
	}

	wantRxAddr0 := append([]byte{commandWRegister | regRxAddrP0}, 0x71, 0x91, 0x7d, 0x6b)
	if !bytes.Contains(spi.tx, wantRxAddr0) {
		t.Errorf("AsTx(nil) should write RX_ADDR_P0 truncated to address length, got %X", spi.tx)
	}
}

func TestAsTxWithNewAddressWritesTxAddrTruncated(t *testing.T) {
	d, spi, _ := newTestDevice()
	d.feature.addressLength = 4
	newAddr := []byte{0x11, 0x22, 0x33, 0x44, 0x55}

	spi.queueRx([]byte{0, 0x02})
	if err := d.AsTx(newAddr); err != nil {
		t.Fatalf("AsTx failed: %v", err)
	}

	wantTxAddr := append([]byte{commandWRegister | regTxAddr}, 0x11, 0x22, 0x33, 0x44)
	if !bytes.Contains(spi.tx, wantTxAddr) {
		t.Errorf("AsTx(newAddr) should write TX_ADDR truncated to address length, got %X", spi.tx)
	}
	if bytes.Contains(spi.tx, []byte{commandWRegister | regTxAddr, 0x11, 0x22, 0x33, 0x44, 0x55}) {
		t.Error("TX_ADDR write should be truncated to address length, not the full 5 bytes")
	}
}

func TestOpenCloseRxPipeRoundTrip(t *testing.T) {
	d, spi, _ := newTestDevice()

	for p := byte(0); p < pipeCount; p++ {
		spi.queueRx([]byte{0})
		if err := d.OpenRxPipe(p, bytes.Repeat([]byte{0xAA}, 5)); err != nil {
			t.Fatalf("OpenRxPipe(%d) failed: %v", p, err)
		}
		spi.queueRx([]byte{1 << p})
		enabled, err := d.IsRxPipeEnabled(p)
		if err != nil {
			t.Fatalf("IsRxPipeEnabled(%d) failed: %v", p, err)
		}
		if !enabled {
			t.Errorf("pipe %d should be enabled after OpenRxPipe", p)
		}

		spi.queueRx([]byte{1 << p})
		if err := d.CloseRxPipe(p); err != nil {
			t.Fatalf("CloseRxPipe(%d) failed: %v", p, err)
		}
		spi.queueRx([]byte{0})
		enabled, err = d.IsRxPipeEnabled(p)
		if err != nil {
			t.Fatalf("IsRxPipeEnabled(%d) failed: %v", p, err)
		}
		if enabled {
			t.Errorf("pipe %d should be disabled after CloseRxPipe", p)
		}
	}
}

// invariant 7: SetDataRate recomputes tx_delay from the documented table.
func TestSetDataRateRecomputesTxDelay(t *testing.T) {
	cases := []struct {
		rate DataRate
		want uint32
	}{
		{DataRate1Mbps, 280},
		{DataRate2Mbps, 240},
		{DataRate250Kbps, 505},
	}
	for _, c := range cases {
		d, spi, _ := newTestDevice()
		spi.queueRx([]byte{0, 0})
		if err := d.SetDataRate(c.rate); err != nil {
			t.Fatalf("SetDataRate(%v) failed: %v", c.rate, err)
		}
		if d.txDelay != c.want {
			t.Errorf("SetDataRate(%v): txDelay = %d, want %d", c.rate, d.txDelay, c.want)
		}
	}
}

func TestWithConfigGettersRoundTrip(t *testing.T) {
	spi := &mockSPI{}
	ce := &mockPin{}
	d := &Device{conn: spi, ce: ce, delay: &mockDelay{}, feature: featureReg{addressLength: 5}}
	for i := range d.txAddress {
		d.txAddress[i] = 0xE7
	}

	cfg := DefaultRadioConfig().WithChannel(40).WithPayloadLength(16)
	if err := d.WithConfig(cfg); err != nil {
		t.Fatalf("WithConfig failed: %v", err)
	}

	spi.queueRx([]byte{0, 40})
	got, err := d.GetChannel()
	if err != nil {
		t.Fatalf("GetChannel failed: %v", err)
	}
	if got != 40 {
		t.Errorf("GetChannel() = %d, want 40", got)
	}
	if d.payloadLength != 16 {
		t.Errorf("payloadLength = %d, want 16", d.payloadLength)
	}
}
