package userdict

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	engerrors "github.com/maidos/ime-engine/pkg/errors"
)

// userDictArchiveMember is the file Export's zip form (and the file
// ImportArchive looks for on the way in) inside an archive.
const userDictArchiveMember = "user_dict.json"

// ImportArchive accepts either a raw user-dictionary JSON payload (the
// same shape Import takes) or a zip archive containing one member named
// user_dict.json, per §4.6's "import accepts either a raw user-dictionary
// JSON or an archive containing it".
func (d *Dict) ImportArchive(data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Not a zip archive; treat it as a raw JSON payload.
		return d.Import(data)
	}

	for _, file := range reader.File {
		if strings.Contains(file.Name, "..") {
			continue
		}
		if file.Name != userDictArchiveMember {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return engerrors.Wrap(engerrors.KindUserDictIO, "open archive member", err)
		}
		defer rc.Close()
		payload, err := io.ReadAll(rc)
		if err != nil {
			return engerrors.Wrap(engerrors.KindUserDictIO, "read archive member", err)
		}
		return d.Import(payload)
	}
	return engerrors.New(engerrors.KindUserDictIO, fmt.Sprintf("archive has no %s member", userDictArchiveMember))
}

// ExportArchive wraps Export's deterministic JSON in a single-member
// zip archive, for hosts that want the same container shape back out.
func (d *Dict) ExportArchive() ([]byte, error) {
	payload, err := d.Export()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	member, err := w.Create(userDictArchiveMember)
	if err != nil {
		return nil, err
	}
	if _, err := member.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
