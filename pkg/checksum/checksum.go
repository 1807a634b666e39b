// Package checksum computes and checks SHA-256 digests for archived audit
// objects. Each archived entry gets a sidecar in sha256sum format so an
// operator can verify an exported archive with standard tools.
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

// SidecarSuffix is appended to an object key to name its checksum sidecar.
const SidecarSuffix = ".sha256"

// CalculateSHA256 returns the hex SHA-256 of everything read from reader.
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Sum returns the hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SidecarLine renders one sha256sum line for the object stored under key.
// Only the base name is written so the sidecar verifies next to its object.
func SidecarLine(data []byte, key string) string {
	return fmt.Sprintf("%s  %s\n", Sum(data), path.Base(key))
}

// ParseSidecar reads a sha256sum line and returns the digest and file name.
func ParseSidecar(r io.Reader) (digest, name string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) != sha256.Size*2 {
			return "", "", fmt.Errorf("malformed checksum line: %q", line)
		}
		return strings.ToLower(fields[0]), strings.TrimPrefix(fields[1], "*"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("failed to read checksum: %w", err)
	}
	return "", "", fmt.Errorf("empty checksum file")
}

// VerifySHA256 reports whether the data read from reader hashes to expected.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return actual == strings.ToLower(expected), nil
}
