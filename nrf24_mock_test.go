package nrf24

// Shared test doubles for SPI, Pin and Delay, in the teacher's
// hand-rolled mock style: a byte-accumulator plus a queue of canned
// responses.

type mockPin struct {
	mode  string
	level Level
	pull  Pull
}

func (m *mockPin) Out(l Level) error {
	m.mode = "output"
	m.level = l
	return nil
}

func (m *mockPin) In(pull Pull) error {
	m.mode = "input"
	m.pull = pull
	return nil
}

func (m *mockPin) Read() Level { return m.level }

func (m *mockPin) Watch(edge Edge, handler func()) error { return nil }
func (m *mockPin) Unwatch() error                        { return nil }

type mockDelay struct{ total uint32 }

func (d *mockDelay) DelayNs(ns uint32) { d.total += ns }

// mockSPI accumulates every byte written to it and serves canned
// responses from rxQueue in FIFO order, one queued response per Tx call.
// If the queue is empty, Tx leaves r untouched; because the driver
// transfers in place (r and w are the same slice), r then still holds the
// bytes that were sent, status byte included.
type mockSPI struct {
	tx      []byte
	rxQueue [][]byte
}

func (m *mockSPI) Tx(w, r []byte) error {
	m.tx = append(m.tx, w...)
	if len(m.rxQueue) > 0 {
		next := m.rxQueue[0]
		m.rxQueue = m.rxQueue[1:]
		n := len(r)
		if len(next) < n {
			n = len(next)
		}
		copy(r, next[:n])
	}
	return nil
}

func (m *mockSPI) queueRx(data []byte) { m.rxQueue = append(m.rxQueue, data) }

// newTestDevice builds a Device against mock peripherals without running
// Init, for tests that only exercise a single method in isolation.
func newTestDevice() (*Device, *mockSPI, *mockPin) {
	spi := &mockSPI{}
	ce := &mockPin{}
	d := &Device{
		conn:          spi,
		ce:            ce,
		delay:         &mockDelay{},
		config:        configReg(0x0C),
		feature:       featureReg{addressLength: 5, isPlusVariant: true},
		payloadLength: 32,
		autoAck:       true,
		txDelay:       280,
	}
	for i := range d.txAddress {
		d.txAddress[i] = 0xE7
	}
	return d, spi, ce
}
