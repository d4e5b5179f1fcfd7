package executor

import (
	"archive/zip"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// writePNG encodes img to path and fsyncs before returning the byte size.
// Readers that observe the job SUCCEEDED must find complete files.
func writePNG(path string, img image.Image) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// writeJSON marshals v to path, indented, and fsyncs.
func writeJSON(path string, v interface{}) (int64, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// zipArtifacts bundles the named files from dir into dir/artifacts.zip. The
// archive is written under a temporary name and renamed into place so a
// partially written bundle is never visible under the final name.
func zipArtifacts(dir string, names []string) error {
	final := filepath.Join(dir, "artifacts.zip")
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(f)
	for _, name := range names {
		if err := addZipEntry(zw, dir, name); err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, final)
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
