package payloadextract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otapack/payload-extract/internal/manifest"
)

// runPartition creates the output image, opens an optional old-image
// source for differential mode, then applies every operation in manifest
// order.
func runPartition(part manifest.PartitionUpdate, payload Source, dataOffset int64, blockSize uint32, outDir, oldDir string, diff bool, log func(string)) error {
	if log == nil {
		log = func(string) {}
	}
	log(fmt.Sprintf("Processing %s partition", part.PartitionName))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return &IOError{Op: "create output directory", Cause: err}
	}
	outPath := filepath.Join(outDir, part.PartitionName+".img")
	outFile, err := os.Create(outPath)
	if err != nil {
		return &IOError{Op: "create output image", Cause: err}
	}
	defer outFile.Close()

	if size := partitionImageSize(part.Operations, blockSize); size > 0 {
		if err := preallocate(outFile, size); err != nil {
			return &IOError{Op: "preallocate output image", Cause: err}
		}
	}

	var oldReader OldImage
	if diff {
		oldPath := filepath.Join(oldDir, part.PartitionName+".img")
		oldFile, err := os.Open(oldPath)
		if err != nil {
			log(fmt.Sprintf("Warning: original image %s not found for differential OTA", oldPath))
		} else {
			defer oldFile.Close()
			oldReader = oldFile
		}
	}

	for _, op := range part.Operations {
		log(fmt.Sprintf("  [OP] type=%d data_offset=%d data_length=%d", op.Type, op.DataOffset, op.DataLength))
		if err := applyOperation(op, payload, outFile, oldReader, dataOffset, blockSize); err != nil {
			log(fmt.Sprintf("operation failed: type=%d data_offset=%d: %v", op.Type, op.DataOffset, err))
			return err
		}
	}

	log(fmt.Sprintf("%s extraction done", part.PartitionName))
	return nil
}

// partitionImageSize is the byte length one past the furthest destination
// extent any operation in ops writes to — the final size the output image
// must reach, used to preallocate it up front.
func partitionImageSize(ops []manifest.InstallOperation, blockSize uint32) int64 {
	var max int64
	for _, op := range ops {
		for _, ext := range op.DstExtents {
			end := int64(ext.StartBlock+ext.NumBlocks) * int64(blockSize)
			if end > max {
				max = end
			}
		}
	}
	return max
}
