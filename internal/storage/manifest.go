package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/banddump/internal/protocol"
)

// ManifestExt is appended to the image path for its manifest
const ManifestExt = ".yaml"

// Manifest describes a downloaded image. It is written next to the image.
type Manifest struct {
	Device     string    `yaml:"device,omitempty"`
	Firmware   string    `yaml:"firmware"`
	DataStart  uint16    `yaml:"data_start"`
	DataEnd    uint16    `yaml:"data_end"`
	FlashSize  uint16    `yaml:"flash_size"`
	Size       int       `yaml:"size"`
	SHA256     string    `yaml:"sha256"`
	CRC16      string    `yaml:"crc16"`
	Link       string    `yaml:"link,omitempty"`
	Downloaded time.Time `yaml:"downloaded"`
	Duration   string    `yaml:"duration,omitempty"`
}

// NewManifest fills a manifest for image
func NewManifest(device, firmware string, info protocol.DataInfo, image []byte) *Manifest {
	sum := sha256.Sum256(image)
	return &Manifest{
		Device:     device,
		Firmware:   firmware,
		DataStart:  info.DataStart,
		DataEnd:    info.DataEnd,
		FlashSize:  info.FlashSize,
		Size:       len(image),
		SHA256:     hex.EncodeToString(sum[:]),
		CRC16:      fmt.Sprintf("0x%04x", protocol.CRC16(image)),
		Downloaded: time.Now().UTC(),
	}
}

// ManifestPath returns the manifest path for an image path
func ManifestPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, ImageExt) + ManifestExt
}

// WriteManifest writes m next to imagePath
func WriteManifest(imagePath string, m *Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := ManifestPath(imagePath)
	if err := WriteFileAtomic(path, data, filePerm); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads a manifest
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Verify checks image against the manifest's size and digest
func (m *Manifest) Verify(image []byte) error {
	if len(image) != m.Size {
		return fmt.Errorf("image is %d bytes, manifest says %d", len(image), m.Size)
	}
	sum := sha256.Sum256(image)
	if got := hex.EncodeToString(sum[:]); got != m.SHA256 {
		return fmt.Errorf("sha256 mismatch: got %s, manifest says %s", got, m.SHA256)
	}
	return nil
}
