package executor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/plan"
)

// Guards bound what an apply run may do. Every check runs before the
// checkpoint is even created, so a rejected plan mutates nothing.
type Guards struct {
	// MaxActions caps the number of mutating items in one plan. Zero
	// means unlimited.
	MaxActions int
	// MaxMoveBytes caps the summed size of moved files. Zero means
	// unlimited.
	MaxMoveBytes int64
	// ProtectedPaths are prefixes no action may touch as source or target.
	ProtectedPaths []string
}

func (g Guards) check(p *plan.Plan) error {
	mutating := 0
	var moveBytes int64
	for _, it := range p.Items {
		if it.Action == plan.ActionNoOp {
			continue
		}
		mutating++
		if it.Action == plan.ActionMove {
			moveBytes += it.Size
		}
		if path := g.protectedHit(it); path != "" {
			return fault.New(fault.CodeGuardViolation,
				fmt.Sprintf("item %s touches protected path %s", it.ID, path))
		}
	}
	if g.MaxActions > 0 && mutating > g.MaxActions {
		return fault.New(fault.CodeThresholdExceeded,
			fmt.Sprintf("plan has %d mutating actions, limit is %d", mutating, g.MaxActions))
	}
	if g.MaxMoveBytes > 0 && moveBytes > g.MaxMoveBytes {
		return fault.New(fault.CodeThresholdExceeded,
			fmt.Sprintf("plan moves %d bytes, limit is %d", moveBytes, g.MaxMoveBytes))
	}
	return nil
}

func (g Guards) protectedHit(it plan.Item) string {
	for _, prot := range g.ProtectedPaths {
		if underPath(it.Source, prot) {
			return prot
		}
		if it.Target != "" && underPath(it.Target, prot) {
			return prot
		}
	}
	return ""
}

// underPath reports whether p equals root or lies beneath it.
func underPath(p, root string) bool {
	p = filepath.Clean(p)
	root = filepath.Clean(root)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
