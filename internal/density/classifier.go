// Package density maps a person count onto a crowd density tier.
package density

import "fmt"

type Tier int

const (
	Quiet Tier = iota
	Warning
	Critical
)

func (t Tier) String() string {
	switch t {
	case Quiet:
		return "quiet"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Severity orders tiers: quiet < warning < critical.
func (t Tier) Severity() int { return int(t) }

// Thresholds are inclusive lower bounds for the warning and critical tiers.
// Warning may equal Critical, in which case warning is never produced.
type Thresholds struct {
	Warning  int
	Critical int
}

func NewThresholds(warning, critical int) (Thresholds, error) {
	if warning < 0 || critical < 0 {
		return Thresholds{}, fmt.Errorf("thresholds must be non-negative: warning=%d critical=%d", warning, critical)
	}
	if warning > critical {
		return Thresholds{}, fmt.Errorf("warning threshold %d exceeds critical threshold %d", warning, critical)
	}
	return Thresholds{Warning: warning, Critical: critical}, nil
}

func Classify(count int, th Thresholds) Tier {
	switch {
	case count >= th.Critical:
		return Critical
	case count >= th.Warning:
		return Warning
	default:
		return Quiet
	}
}
