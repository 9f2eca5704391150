// Package jsonfile reads and writes whole JSON documents held in
// single files on disk.
package jsonfile

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	errgo "gopkg.in/errgo.v1"
)

// Read reads the JSON document at path into x. If the file does not
// exist the returned error satisfies os.IsNotExist.
func Read(path string, x interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, x); err != nil {
		return errgo.Notef(err, "cannot parse JSON document %q", path)
	}
	return nil
}

// Write writes x as the JSON document at path, replacing any
// previous document. The document is staged in a temporary file in
// the same directory and renamed into place, so an interrupted write
// never leaves a truncated document behind.
func Write(path string, x interface{}) error {
	data, err := json.Marshal(x)
	if err != nil {
		return errgo.Notef(err, "cannot marshal JSON document for %q", path)
	}
	f, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+"-")
	if err != nil {
		return errgo.Mask(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errgo.Notef(err, "cannot write %q", f.Name())
	}
	if err := f.Close(); err != nil {
		return errgo.Mask(err)
	}
	// TempFile creates the staging file mode 0600; the documents
	// are world-readable like any other data file here.
	if err := os.Chmod(f.Name(), 0666); err != nil {
		return errgo.Mask(err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return errgo.Mask(err)
	}
	return nil
}
