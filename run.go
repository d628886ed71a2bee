package payloadextract

import (
	"math"

	"github.com/otapack/payload-extract/internal/manifest"
)

// Hooks are the optional observer callbacks: Log for free-form
// diagnostics, Progress called once per completed partition, and
// Cancelled polled between partitions. Any of them may be nil.
type Hooks struct {
	Log       func(message string)
	Progress  func(percent int)
	Cancelled func() bool
}

func (h Hooks) log(msg string) {
	if h.Log != nil {
		h.Log(msg)
	}
}

func (h Hooks) cancelled() bool {
	return h.Cancelled != nil && h.Cancelled()
}

func (h Hooks) progress(percent int) {
	if h.Progress != nil {
		h.Progress(percent)
	}
}

// Options configures a Run.
type Options struct {
	OutDir     string   // output directory; created if missing
	Diff       bool     // differential mode
	OldDir     string   // directory holding previously installed partition images
	Partitions []string // allow-list of partition names; nil/empty means all
}

// Run parses the frame, decodes the manifest, selects partitions, and
// extracts each one in manifest order.
func Run(src Source, opts Options, hooks Hooks) error {
	hooks.log("Opening payload file...")

	frame, err := readFrame(src)
	if err != nil {
		return err
	}

	m, err := manifest.Decode(frame.ManifestBytes)
	if err != nil {
		return wrapFormat("malformed manifest", err)
	}

	selected := selectPartitions(m.Partitions, opts.Partitions)
	total := len(selected)

	for i, part := range selected {
		if i > 0 && hooks.cancelled() {
			hooks.log("Extraction cancelled.")
			return ErrCancelled
		}

		if err := runPartition(part, src, frame.DataOffset, m.BlockSize, opts.OutDir, opts.OldDir, opts.Diff, hooks.Log); err != nil {
			return err
		}

		percent := int(math.Round(float64(i+1) / float64(total) * 100))
		hooks.progress(percent)
	}

	hooks.log("All done.")
	return nil
}

// selectPartitions returns the manifest's partitions, filtered to the
// allow-list (intersection, not union) while preserving manifest order;
// an empty allow-list means "all partitions".
func selectPartitions(all []manifest.PartitionUpdate, allow []string) []manifest.PartitionUpdate {
	if len(allow) == 0 {
		return all
	}
	want := make(map[string]bool, len(allow))
	for _, name := range allow {
		want[name] = true
	}
	var out []manifest.PartitionUpdate
	for _, p := range all {
		if want[p.PartitionName] {
			out = append(out, p)
		}
	}
	return out
}
