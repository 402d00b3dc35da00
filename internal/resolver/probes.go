package resolver

// The resolver consumes OS predicates through narrow probe interfaces.
// Implementations live outside this core (OS-specific detection); tests and
// the pipeline supply fakes or conservative defaults.

// VolumeProbe answers whether two paths share a device.
type VolumeProbe interface {
	SameVolume(a, b string) bool
}

// SyncProbe answers whether a path is under cloud-sync management.
type SyncProbe interface {
	UnderSync(path string) bool
}

// LockProbe answers whether a path is currently locked.
type LockProbe interface {
	Locked(path string) bool
}

// Probes bundles the three predicates. Any nil field is treated as a probe
// that never fires, so callers without OS support lose annotations, not
// functionality.
type Probes struct {
	Volume VolumeProbe
	Sync   SyncProbe
	Lock   LockProbe
}

func (p Probes) sameVolume(a, b string) bool {
	if p.Volume == nil {
		return true
	}
	return p.Volume.SameVolume(a, b)
}

func (p Probes) underSync(path string) bool {
	return p.Sync != nil && p.Sync.UnderSync(path)
}

func (p Probes) locked(path string) bool {
	return p.Lock != nil && p.Lock.Locked(path)
}

// Confidence penalties per risk flag, in basis points. Fixed and documented:
// annotating a flag always subtracts exactly this much, floored at zero.
const (
	PenaltyCrossVolume = 1500
	PenaltyCloudSync   = 2500
	PenaltyLocked      = 3000
)
