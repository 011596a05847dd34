package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewDocNumber generates a document number such as PO-20260115-3F2A81C4.
// The random suffix keeps numbers unique without a database round trip;
// callers that need strictly sequential numbering pass their own.
func NewDocNumber(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), suffix)
}
