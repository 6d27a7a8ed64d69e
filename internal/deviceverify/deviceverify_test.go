package deviceverify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderPairingCodeProducesPNG(t *testing.T) {
	t.Parallel()
	flow := NewQRFlow("@kelvin:example.com")
	png, err := flow.RenderPairingCode("DEVICEID", "base64key")
	if err != nil {
		t.Fatalf("RenderPairingCode: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Error("output is not a PNG")
	}
}

func TestRenderPairingCodeRejectsEmptyInputs(t *testing.T) {
	t.Parallel()
	flow := NewQRFlow("@kelvin:example.com")
	if _, err := flow.RenderPairingCode("", "key"); err == nil {
		t.Error("accepted empty device id")
	}
	if _, err := flow.RenderPairingCode("dev", "  "); err == nil {
		t.Error("accepted blank verification key")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	payload := Payload("@kelvin:example.com", "DEV1", "KEY1")
	issuer, deviceID, key, err := ParsePayload(payload)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if issuer != "@kelvin:example.com" || deviceID != "DEV1" || key != "KEY1" {
		t.Errorf("round trip mismatch: %q %q %q", issuer, deviceID, key)
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, payload := range []string{
		"",
		"not a payload",
		"KELVIN-VERIFY:v99:i:d:k",
		"OTHER-MAGIC:v1:i:d:k",
	} {
		if _, _, _, err := ParsePayload(payload); err == nil {
			t.Errorf("ParsePayload(%q) succeeded, want error", payload)
		}
	}
}

func TestWritePairingCode(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := WritePairingCode(NewQRFlow("@kelvin:example.com"), dir, "DEV1", "KEY1")
	if err != nil {
		t.Fatalf("WritePairingCode: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("written file is not a PNG")
	}
}
