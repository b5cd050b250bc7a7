package idgen

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDLength is the total length of every record id: a two letter prefix plus 23 characters.
const IDLength = 25

const (
	PrefixSession         = "VH"
	PrefixPayment         = "TX"
	PrefixShiftClosure    = "SC"
	PrefixTariff          = "TF"
	PrefixPendingConflict = "PC"
)

// New returns prefix followed by random characters up to IDLength.
func New(prefix string) string {
	var b strings.Builder
	b.Grow(IDLength)
	b.WriteString(prefix)
	for b.Len() < IDLength {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:IDLength]
}

// TicketCode returns a printable ticket code: TK, the base36 millisecond timestamp and
// three random characters, upper-cased.
func TicketCode(now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:3]
	return strings.ToUpper("TK" + stamp + suffix)
}
