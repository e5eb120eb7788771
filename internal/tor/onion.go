package tor

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// V3 onion address constants. The relay only deals with v3 addresses;
// v2 was retired from the Tor network in 2021.
const (
	// onionV3Version is the version byte encoded in every v3 address.
	onionV3Version = 0x03

	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"
)

// onionV3Pattern matches v3 onion addresses: 56 base32 characters
// (lowercase a-z, digits 2-7) plus the suffix.
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the domain-separation prefix from the Tor rendezvous
// specification's checksum construction.
var checksumPrefix = []byte(".onion checksum")

// IsValidV3Address checks whether address is a well-formed v3 onion
// address, including checksum verification.
//
// Full checksum validation (rather than just pattern matching) catches
// typos in configured hidden-service targets before they are handed to
// the daemon, matching what Tor itself does when connecting.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	onionPart := strings.TrimSuffix(address, OnionSuffix)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(onionPart))
	if err != nil {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	if len(decoded) != 35 {
		return false
	}
	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]

	if version != onionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	hash := sha3.Sum256(data)
	return hash[:2]
}

// ValidateOnionTarget checks an onion "host" or "host:port" destination,
// as used when an upstream endpoint itself is a hidden service.
func ValidateOnionTarget(target string) error {
	host := target
	if idx := strings.LastIndex(target, ":"); idx != -1 {
		host = target[:idx]
	}
	if !IsValidV3Address(host) {
		return ErrInvalidOnionAddress
	}
	return nil
}
