package vm

import (
	"strconv"
	"strings"

	"github.com/kristofer/torquevm/pkg/simobject"
)

// resolveObjectPath implements OP_SETCUROBJECT's target resolution: a
// leading numeric segment is an object id, otherwise a name; either
// may be followed by a "/"-separated subpath resolved through nested
// groups.
func (e *Engine) resolveObjectPath(s string) *simobject.Object {
	if s == "" {
		return nil
	}
	s = strings.TrimPrefix(s, "/")
	head, tail, hasTail := strings.Cut(s, "/")

	var base *simobject.Object
	if n, err := strconv.ParseUint(head, 10, 32); err == nil {
		base, _ = e.Objects.FindByID(uint32(n))
	} else {
		base, _ = e.Objects.FindByName(head)
	}
	if base == nil {
		return nil
	}
	if !hasTail {
		return base
	}
	obj, ok := base.FindObject(tail)
	if !ok {
		return nil
	}
	return obj
}
