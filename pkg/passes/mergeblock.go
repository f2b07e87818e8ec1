package passes

import "github.com/raymyers/armbe/pkg/mir"
import "github.com/raymyers/armbe/pkg/pass"

// MergeBlock folds a block into its unique predecessor whenever that
// predecessor's only successor is this block (an unconditional Br to it)
// and this block has no other predecessor: the two always execute back
// to back, so there is no reason to keep them as separate labels.
type MergeBlock struct{}

func (MergeBlock) Name() string { return "MergeBlock" }

func (MergeBlock) OptimizeMir(pkg *mir.MirPackage, extras *pass.Extras) (*mir.MirPackage, error) {
	for _, fn := range pkg.Functions {
		if fn.Type.IsExtern {
			continue
		}
		for mergeOnce(fn) {
		}
	}
	return pkg, nil
}

func mergeOnce(fn *mir.MirFunction) bool {
	for id, blk := range fn.Blocks {
		if id == fn.Entry || len(blk.Preds) != 1 {
			continue
		}
		var predId mir.BlockId
		for p := range blk.Preds {
			predId = p
		}
		pred, ok := fn.Blocks[predId]
		if !ok || predId == id {
			continue
		}
		br, ok := pred.Term.(mir.Br)
		if !ok || br.Target != id {
			continue
		}
		pred.Insts = append(pred.Insts, blk.Insts...)
		pred.Term = blk.Term
		delete(fn.Blocks, id)
		fn.RebuildPreds()
		return true
	}
	return false
}
