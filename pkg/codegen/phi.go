package codegen

import "github.com/raymyers/armbe/pkg/mir"

// buildPhiCollapse unions every Phi's destination with each of its source
// variables via a path-compressing union-find, so that downstream lowering
// never needs to emit a move for a Phi: every variable in the same Phi
// family resolves to one representative register through collapsedVar.
func (s *funcState) buildPhiCollapse(fn *mir.MirFunction) {
	ids := blockIdsSorted(fn)
	for _, id := range ids {
		for _, inst := range fn.Blocks[id].Insts {
			phi, ok := inst.(mir.Phi)
			if !ok {
				continue
			}
			for _, v := range phi.Vars {
				s.union(phi.DestId, v)
			}
		}
	}
}

func (s *funcState) find(id mir.VarId) mir.VarId {
	seen := make(map[mir.VarId]bool)
	for {
		next, ok := s.collapse[id]
		if !ok || next == id || seen[id] {
			return id
		}
		seen[id] = true
		id = next
	}
}

// union joins a's and b's families, always resolving to the minimum VarId
// as the family's representative, so collapsedVar's choice of register for
// a Phi family is deterministic rather than an artifact of union order.
func (s *funcState) union(a, b mir.VarId) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		s.collapse[rb] = ra
	} else {
		s.collapse[ra] = rb
	}
}

func blockIdsSorted(fn *mir.MirFunction) []mir.BlockId {
	var ids []mir.BlockId
	for id := range fn.Blocks {
		ids = append(ids, id)
	}
	sortBlockIds(ids)
	return ids
}
