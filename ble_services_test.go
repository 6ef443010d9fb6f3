package nrf24

import "testing"

func TestBatteryServiceRoundTrip(t *testing.T) {
	for _, level := range []byte{0, 1, 50, 99, 100} {
		svc := BatteryService{Level: level}
		encoded := svc.Encode(nil)

		got, n, err := ParseBatteryService(encoded)
		if err != nil {
			t.Fatalf("ParseBatteryService(level=%d) failed: %v", level, err)
		}
		if n != len(encoded) {
			t.Errorf("ParseBatteryService consumed %d bytes, want %d", n, len(encoded))
		}
		if got != svc {
			t.Errorf("round-trip mismatch: got %+v, want %+v", got, svc)
		}
	}
}

func TestBatteryServiceClampsOver100(t *testing.T) {
	encoded := BatteryService{Level: 200}.Encode(nil)
	got, _, err := ParseBatteryService(encoded)
	if err != nil {
		t.Fatalf("ParseBatteryService failed: %v", err)
	}
	if got.Level != 100 {
		t.Errorf("Level = %d, want clamped 100", got.Level)
	}
}

func TestTemperatureServiceRoundTrip(t *testing.T) {
	for _, c := range []float64{0, 23.45, -40.5, 100, -273.15} {
		svc := NewTemperatureService(c)
		encoded := svc.Encode(nil)

		got, n, err := ParseTemperatureService(encoded)
		if err != nil {
			t.Fatalf("ParseTemperatureService(%v) failed: %v", c, err)
		}
		if n != len(encoded) {
			t.Errorf("ParseTemperatureService consumed %d bytes, want %d", n, len(encoded))
		}
		if got.CentiCelsius != svc.CentiCelsius {
			t.Errorf("round-trip mismatch for %v°C: got %d centi-celsius, want %d",
				c, got.CentiCelsius, svc.CentiCelsius)
		}
	}
}

func TestTemperatureServiceExtremes(t *testing.T) {
	svc := TemperatureService{CentiCelsius: -32768}
	encoded := svc.Encode(nil)
	got, _, err := ParseTemperatureService(encoded)
	if err != nil {
		t.Fatalf("ParseTemperatureService failed: %v", err)
	}
	if got.CentiCelsius != -32768 {
		t.Errorf("CentiCelsius = %d, want -32768", got.CentiCelsius)
	}

	svc2 := TemperatureService{CentiCelsius: 32767}
	encoded2 := svc2.Encode(nil)
	got2, _, err := ParseTemperatureService(encoded2)
	if err != nil {
		t.Fatalf("ParseTemperatureService failed: %v", err)
	}
	if got2.CentiCelsius != 32767 {
		t.Errorf("CentiCelsius = %d, want 32767", got2.CentiCelsius)
	}
}

func TestUrlServiceRoundTrip(t *testing.T) {
	urls := []string{
		"https://www.example.com/",
		"http://www.example.org",
		"https://example.net/",
		"http://example.biz",
		"https://www.github.io/owner/repo",
	}
	for _, url := range urls {
		svc := UrlService{TxPower: -20, URL: url}
		encoded := svc.Encode(nil)

		got, n, err := ParseUrlService(encoded)
		if err != nil {
			t.Fatalf("ParseUrlService(%q) failed: %v", url, err)
		}
		if n != len(encoded) {
			t.Errorf("ParseUrlService(%q) consumed %d bytes, want %d", url, n, len(encoded))
		}
		if got.URL != url {
			t.Errorf("round-trip mismatch: got %q, want %q", got.URL, url)
		}
		if got.TxPower != svc.TxPower {
			t.Errorf("TxPower mismatch: got %d, want %d", got.TxPower, svc.TxPower)
		}
	}
}

func TestUrlServicePrefixByteCodes(t *testing.T) {
	// Eddystone URL Scheme Prefix codes: 0x00=http://www., 0x01=https://www.,
	// 0x02=http://, 0x03=https://.
	cases := []struct {
		url  string
		code byte
	}{
		{"http://www.example.com/", 0x00},
		{"https://www.example.com/", 0x01},
		{"http://example.com/", 0x02},
		{"https://example.com/", 0x03},
	}
	for _, c := range cases {
		encoded := UrlService{URL: c.url}.Encode(nil)
		// encoded layout: [length, 0x16, uuid lo, uuid hi, 0x10, tx power, prefix code, ...]
		if len(encoded) < 7 {
			t.Fatalf("encoded %q too short: %X", c.url, encoded)
		}
		if got := encoded[6]; got != c.code {
			t.Errorf("prefix code for %q = %#02x, want %#02x", c.url, got, c.code)
		}
	}
}

func TestUrlServiceFitsSeventeenBytes(t *testing.T) {
	// "https://www." (code) + "github" (6 bytes) + ".com/"->code = 1+6+1 = 8 <= 17;
	// with the 6 header bytes the encoded chunk is 14 bytes.
	svc := UrlService{TxPower: 0, URL: "https://www.github.com/"}
	encoded := svc.Encode(nil)
	if len(encoded) > 18 {
		t.Errorf("encoded length %d exceeds the 18-byte budget", len(encoded))
	}
}
