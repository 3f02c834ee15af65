package insights

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"

	"vehicle-insights/internal/models"
)

// FingerprintPrefix is how many leading records feed the fingerprint.
const FingerprintPrefix = 10

// Fingerprint derives a cache key from the speed, fuel level and engine
// temperature of the first FingerprintPrefix records. Records are
// expected newest first, so the key tracks the most recent readings.
//
// Only those three fields are read. Two batches that agree on them but
// differ elsewhere share a fingerprint; callers accept that.
func Fingerprint(records []models.TelemetryRecord) string {
	n := len(records)
	if n > FingerprintPrefix {
		n = FingerprintPrefix
	}

	buf := make([]byte, 0, n*24)
	for _, r := range records[:n] {
		buf = strconv.AppendFloat(buf, r.Speed, 'f', -1, 64)
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, r.FuelLevel, 'f', -1, 64)
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, r.EngineTemp, 'f', -1, 64)
		buf = append(buf, ';')
	}

	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:16])
}
