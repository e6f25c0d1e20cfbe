// Package utils provides general-purpose utility functions for the harvester,
// including number formatting, text slugification, random identifiers and a
// connectivity probe.
package utils

import (
	"crypto/rand"
	"fmt"
	"math"
	"net"
	"regexp"
	"strings"
	"time"
)

var slugifyNonAlnum = regexp.MustCompile(`[^a-z0-9-]+`)

var slugifyMultiHyphen = regexp.MustCompile(`-{2,}`)

// Slugify converts a display name to a URL-friendly slug.
// For example: "Tom Clancy's Rainbow Six Siege" becomes "tom-clancys-rainbow-six-siege".
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "\u2019", "") // right single quotation mark '
	s = strings.ReplaceAll(s, "\u2018", "") // left single quotation mark '
	s = slugifyNonAlnum.ReplaceAllString(s, "-")
	s = slugifyMultiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// Millify converts a number to a human-readable string with SI suffixes.
// For example: 1000 -> "1K", 1500000 -> "1.5M".
func Millify(n int, precision int) string {
	if precision < 0 {
		precision = 2
	}

	abs := math.Abs(float64(n))
	sign := ""
	if n < 0 {
		sign = "-"
	}

	suffixes := []struct {
		threshold float64
		suffix    string
	}{
		{1e15, "Q"},
		{1e12, "T"},
		{1e9, "B"},
		{1e6, "M"},
		{1e3, "K"},
	}

	for _, s := range suffixes {
		if abs >= s.threshold {
			val := abs / s.threshold
			formatted := formatFloat(val, precision)
			return sign + formatted + s.suffix
		}
	}

	return fmt.Sprintf("%d", n)
}

func formatFloat(f float64, precision int) string {
	s := fmt.Sprintf("%.*f", precision, f)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// Percentage calculates the integer percentage of a/b.
// Returns 0 if a or b is 0.
func Percentage(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return int((float64(a) / float64(b)) * 100)
}

// FloatRound rounds a float to the specified number of decimal places.
func FloatRound(number float64, ndigits int) float64 {
	pow := math.Pow(10, float64(ndigits))
	return math.Round(number*pow) / pow
}

// Digits 0-9, lowercase, uppercase, then "_" at 62 and "-" at 63. This is the
// alphabet Twitch's web client draws WebSocket request IDs from.
const randomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_-"

// RandomID creates a random string of the given length in the alphabet Twitch
// uses for its WebSocket request IDs.
func RandomID(length int) string {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		for i := range randomBytes {
			randomBytes[i] = randomIDAlphabet[i%36]
		}
		return string(randomBytes)
	}
	for i := range randomBytes {
		randomBytes[i] = randomIDAlphabet[randomBytes[i]&63]
	}
	return string(randomBytes)
}

// InternetProbeAddr is the dial target used to distinguish "Twitch is down"
// from "we are offline". Any public resolver works.
var InternetProbeAddr = "1.1.1.1:53"

// InternetAvailable reports whether the machine currently has a route to the
// internet, using a short TCP dial to a public DNS resolver.
func InternetAvailable() bool {
	conn, err := net.DialTimeout("tcp", InternetProbeAddr, 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Chunks splits a slice into consecutive pieces of at most n elements.
// The last chunk may be shorter.
func Chunks[T any](items []T, n int) [][]T {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+n-1)/n)
	for i := 0; i < len(items); i += n {
		end := min(i+n, len(items))
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
