package plan

import (
	"fmt"
	"regexp"
	"strings"
)

var kraPattern = regexp.MustCompile(`(?i)^kra\s*(\d+)$`)

// NormalizeKRA canonicalizes a KRA identifier to the form "KRA <n>".
// Case-insensitive and whitespace-irregular forms ("KRA5", "kra  5") all
// map to the same canonical id. Input that does not look like a KRA id is
// returned with its whitespace collapsed but otherwise unchanged.
// Idempotent: NormalizeKRA(NormalizeKRA(x)) == NormalizeKRA(x).
func NormalizeKRA(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	m := kraPattern.FindStringSubmatch(collapsed)
	if m == nil {
		return collapsed
	}
	return "KRA " + m[1]
}

// PeriodKey identifies one KPI-period: a single initiative under a KRA in
// a specific year and quarter. It is the unit of rollup materialization.
type PeriodKey struct {
	KRAID        string `json:"kra_id"`
	InitiativeID string `json:"initiative_id"`
	Year         int    `json:"year"`
	Quarter      int    `json:"quarter"`
}

// Canonical returns the key with its KRA id normalized.
func (k PeriodKey) Canonical() PeriodKey {
	k.KRAID = NormalizeKRA(k.KRAID)
	return k
}

func (k PeriodKey) String() string {
	return fmt.Sprintf("%s/%s/%dQ%d", k.KRAID, k.InitiativeID, k.Year, k.Quarter)
}

// Less orders keys deterministically for listings and sweeps.
func (k PeriodKey) Less(other PeriodKey) bool {
	if k.KRAID != other.KRAID {
		return k.KRAID < other.KRAID
	}
	if k.InitiativeID != other.InitiativeID {
		return k.InitiativeID < other.InitiativeID
	}
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Quarter < other.Quarter
}
