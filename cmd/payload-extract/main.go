// Command payload-extract extracts partition images out of an Android OTA
// payload.bin. It accepts a raw payload.bin, a zip containing one (e.g.
// an OTA package), or an http(s) URL served with Range support.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	payloadextract "github.com/otapack/payload-extract"
)

const version = "dev"

func main() {
	var (
		outDir     = flag.String("out", "output", "output directory for extracted partition images")
		oldDir     = flag.String("old", "old", "directory of previously installed partition images, for differential OTA")
		diff       = flag.Bool("diff", false, "treat the payload as a differential (incremental) OTA")
		images     = flag.String("images", "", "comma-separated allow-list of partitions to extract (default: all)")
		showVer    = flag.Bool("version", false, "print version and exit")
		noProgress = flag.Bool("no-progress", false, "disable the progress bar")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <payload-path-or-url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	if err := run(input, *outDir, *oldDir, *diff, *images, *noProgress); err != nil {
		colorstring.Fprintln(os.Stderr, "[red]error:[reset] "+err.Error())
		os.Exit(1)
	}
}

func run(input, outDir, oldDir string, diff bool, images string, noProgress bool) error {
	var partitions []string
	if images != "" {
		partitions = strings.Split(images, ",")
	}

	src, closer, err := openSource(input)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var bar *progressbar.ProgressBar
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if !noProgress && isTTY {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionShowCount(),
		)
	}

	hooks := payloadextract.Hooks{
		Log: func(msg string) {
			if isTTY {
				colorstring.Println("[blue]>[reset] " + msg)
			} else {
				fmt.Fprintln(os.Stderr, msg)
			}
		},
		Progress: func(percent int) {
			if bar != nil {
				bar.Set(percent)
			}
		},
	}

	opts := payloadextract.Options{
		OutDir:     outDir,
		Diff:       diff,
		OldDir:     oldDir,
		Partitions: partitions,
	}

	if err := payloadextract.Run(src, opts, hooks); err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	return nil
}

// openSource resolves the three input kinds this command accepts: a local
// raw payload.bin, a local zip containing one, or an http(s) URL serving
// either with Range support. The returned io.Closer is nil when the
// Source needs no explicit close (a bare *os.File still does, and is
// returned as such).
func openSource(input string) (payloadextract.Source, io.Closer, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		hs, err := payloadextract.NewHTTPRangeSource(context.Background(), input)
		if err != nil {
			return nil, nil, err
		}
		return hs, nil, nil
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, nil, &payloadextract.IOError{Op: "open " + input, Cause: err}
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		f.Close()
		return nil, nil, &payloadextract.IOError{Op: "read " + input, Cause: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, &payloadextract.IOError{Op: "seek " + input, Cause: err}
	}

	if bytes.Equal(magic, []byte("PK\x03\x04")) {
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, nil, &payloadextract.IOError{Op: "seek " + input, Cause: err}
		}
		zs, err := payloadextract.NewZipSource(f, size)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return zs, zipSourceCloser{zs, f}, nil
	}

	return f, f, nil
}

// zipSourceCloser closes both the ZipSource's internal stream and the
// underlying *os.File backing the zip.Reader.
type zipSourceCloser struct {
	zs *payloadextract.ZipSource
	f  *os.File
}

func (c zipSourceCloser) Close() error {
	err := c.zs.Close()
	if ferr := c.f.Close(); err == nil {
		err = ferr
	}
	return err
}
