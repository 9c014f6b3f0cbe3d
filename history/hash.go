package history

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	textTag  = "text:"
	imageTag = "image:"
)

// HashText fingerprints text content. Trailing carriage returns are not
// part of the content.
func HashText(text string) string {
	return textTag + hexDigest([]byte(normalizeText(text)))
}

// HashImage fingerprints encoded image bytes.
func HashImage(data []byte) string {
	return imageTag + hexDigest(data)
}

// BlobName returns the file name used to store the image with the given hash.
func BlobName(hash string) string {
	return strings.ReplaceAll(hash, ":", "_") + ".png"
}

func hexDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.TrimRight(text, "\r")
}
