package scanner

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// RPM packages start with 0xED 0xAB 0xEE 0xDB
var rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

// IsRPM reports whether path looks like an rpm, by lead magic and extension
func IsRPM(fs afero.Fs, path string) (bool, error) {
	if filepath.Ext(path) != ".rpm" {
		return false, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len(rpmMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}

	return bytes.Equal(header, rpmMagic), nil
}
