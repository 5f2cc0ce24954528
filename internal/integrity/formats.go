package integrity

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// checkFormat applies the format-specific well-formedness check for
// the file extension, reading f from the start in streamed form.
// Unknown extensions pass.
func checkFormat(path string, f afero.File, size int64) []string {
	name := strings.ToLower(filepath.Base(path))

	var check func() []string
	switch {
	case strings.HasSuffix(name, ".zip"):
		check = func() []string { return checkZip(f, size) }
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		check = func() []string { return checkTarGz(f) }
	case strings.HasSuffix(name, ".json"):
		check = func() []string { return checkJSON(f) }
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		check = func() []string { return checkYAML(f) }
	case strings.HasSuffix(name, ".sh"):
		check = func() []string { return checkScript(f) }
	default:
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return []string{fmt.Sprintf("cannot rewind file for format check: %v", err)}
	}
	return check()
}

// checkZip opens the archive and tests every member. Empty archives
// are rejected.
func checkZip(ra io.ReaderAt, size int64) []string {
	r, err := zip.NewReader(ra, size)
	if err != nil {
		return []string{fmt.Sprintf("archive cannot be opened: %v", err)}
	}
	if len(r.File) == 0 {
		return []string{"archive contains no members"}
	}

	var errs []string
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			errs = append(errs, fmt.Sprintf("archive member %s cannot be opened: %v", f.Name, err))
			continue
		}
		// Reading to EOF verifies the member's CRC
		if _, err := io.Copy(io.Discard, rc); err != nil {
			errs = append(errs, fmt.Sprintf("archive member %s is corrupt: %v", f.Name, err))
		}
		rc.Close()
	}
	return errs
}

func checkTarGz(r io.Reader) []string {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return []string{fmt.Sprintf("archive cannot be opened: %v", err)}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	members := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return []string{fmt.Sprintf("archive is corrupt: %v", err)}
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return []string{fmt.Sprintf("archive member %s is corrupt: %v", hdr.Name, err)}
		}
		members++
	}
	if members == 0 {
		return []string{"archive contains no members"}
	}
	return nil
}

func checkJSON(r io.Reader) []string {
	dec := json.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return []string{fmt.Sprintf("config is not valid JSON: %v", err)}
	}
	if err := dec.Decode(&v); err != io.EOF {
		return []string{"config has trailing content after the JSON value"}
	}
	return nil
}

func checkYAML(r io.Reader) []string {
	var v any
	if err := yaml.NewDecoder(r).Decode(&v); err != nil && err != io.EOF {
		return []string{fmt.Sprintf("config is not valid YAML: %v", err)}
	}
	return nil
}

// checkScript is a syntax-only sanity scan: binary content and
// unbalanced quoting are the failure modes that matter for a shell
// script shipped as an install artifact.
func checkScript(r io.Reader) []string {
	var errs []string

	br := bufio.NewReader(r)
	inSingle, inDouble := false, false
	escaped := false
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return []string{fmt.Sprintf("cannot read script: %v", err)}
		}
		if b == 0 {
			return []string{"script contains binary data"}
		}
		if escaped {
			escaped = false
			continue
		}
		switch b {
		case '\\':
			if !inSingle {
				escaped = true
			}
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		}
	}
	if inSingle {
		errs = append(errs, "script has an unterminated single-quoted string")
	}
	if inDouble {
		errs = append(errs, "script has an unterminated double-quoted string")
	}

	return errs
}
