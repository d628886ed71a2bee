package payloadextract

import "fmt"

// applyBSDiff reconstructs the destination buffer from a source buffer,
// a patch's declared destination length, and its control/diff/extra
// streams.
func applyBSDiff(src []byte, patch *bsdf2Patch) ([]byte, error) {
	dst := make([]byte, patch.DstLen)

	var sp, dp, di, ei int64
	for _, ctrl := range patch.Controls {
		if sp < 0 || dp+ctrl.DiffLen > patch.DstLen || sp+ctrl.DiffLen > int64(len(src)) {
			return nil, badFormat(fmt.Sprintf("bsdiff control record overruns buffers (dp=%d diff_len=%d dst=%d src=%d)", dp, ctrl.DiffLen, patch.DstLen, len(src)))
		}
		if di+ctrl.DiffLen > int64(len(patch.Diff)) {
			return nil, badFormat("bsdiff control record overruns diff stream")
		}
		for k := int64(0); k < ctrl.DiffLen; k++ {
			dst[dp+k] = src[sp+k] + patch.Diff[di+k]
		}
		dp += ctrl.DiffLen
		sp += ctrl.DiffLen
		di += ctrl.DiffLen

		if dp+ctrl.ExtraLen > patch.DstLen {
			return nil, badFormat("bsdiff control record overruns destination in extra copy")
		}
		if ei+ctrl.ExtraLen > int64(len(patch.Extra)) {
			return nil, badFormat("bsdiff control record overruns extra stream")
		}
		copy(dst[dp:dp+ctrl.ExtraLen], patch.Extra[ei:ei+ctrl.ExtraLen])
		dp += ctrl.ExtraLen
		ei += ctrl.ExtraLen

		sp += ctrl.SeekAdj
	}

	if dp != patch.DstLen {
		return nil, badFormat(fmt.Sprintf("bsdiff patch applied short: produced %d of %d declared bytes", dp, patch.DstLen))
	}
	return dst, nil
}
