// Package deviceverify renders pairing artifacts for verifying a new
// end-to-end-encrypted device against the bot's identity. The federated
// service hands the artifact (a QR code image) to the operator, who
// scans it from the device being verified.
package deviceverify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
)

// payloadVersion tags the pairing payload format so future devices can
// reject codes they do not understand.
const payloadVersion = "v1"

// Flow produces a pairing artifact for one device-verification attempt.
type Flow interface {
	// RenderPairingCode returns an image (PNG) encoding the pairing
	// payload for deviceID and its public verification key.
	RenderPairingCode(deviceID, verificationKey string) ([]byte, error)
}

// QRFlow renders pairing codes as QR images.
type QRFlow struct {
	// Issuer names the verifying identity embedded in the payload,
	// typically the bot's user id on the federated server.
	Issuer string
	// Size is the image edge length in pixels (default 256).
	Size int
}

// NewQRFlow constructs a QRFlow for issuer.
func NewQRFlow(issuer string) *QRFlow {
	return &QRFlow{Issuer: issuer, Size: 256}
}

// RenderPairingCode implements Flow.
func (f *QRFlow) RenderPairingCode(deviceID, verificationKey string) ([]byte, error) {
	if strings.TrimSpace(deviceID) == "" || strings.TrimSpace(verificationKey) == "" {
		return nil, fmt.Errorf("deviceverify: device id and verification key are required")
	}

	size := f.Size
	if size <= 0 {
		size = 256
	}

	payload := Payload(f.Issuer, deviceID, verificationKey)
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode pairing QR: %w", err)
	}
	return png, nil
}

// Payload builds the string encoded into the pairing code:
// "KELVIN-VERIFY:{version}:{issuer}:{deviceID}:{key}". deviceID and key
// must not contain ":" (the E2E stack never produces one); issuer may,
// since ParsePayload takes everything between the version and the last
// two fields as the issuer.
func Payload(issuer, deviceID, verificationKey string) string {
	return strings.Join([]string{
		"KELVIN-VERIFY", payloadVersion, issuer, deviceID, verificationKey,
	}, ":")
}

// ParsePayload is the inverse of Payload; it validates the magic and
// version and returns the embedded fields.
func ParsePayload(payload string) (issuer, deviceID, verificationKey string, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) < 5 || parts[0] != "KELVIN-VERIFY" {
		return "", "", "", fmt.Errorf("deviceverify: not a pairing payload")
	}
	if parts[1] != payloadVersion {
		return "", "", "", fmt.Errorf("deviceverify: unsupported payload version %q", parts[1])
	}
	n := len(parts)
	return strings.Join(parts[2:n-2], ":"), parts[n-2], parts[n-1], nil
}

// WritePairingCode renders the pairing code with flow and writes it to
// dir as "verify-{deviceID}.png", returning the file path.
func WritePairingCode(flow Flow, dir, deviceID, verificationKey string) (string, error) {
	png, err := flow.RenderPairingCode(deviceID, verificationKey)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, "verify-"+deviceID+".png")
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", fmt.Errorf("write pairing code: %w", err)
	}
	return path, nil
}
