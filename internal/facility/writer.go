package facility

import (
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const facilitiesHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE facilities SYSTEM "http://www.matsim.org/files/dtd/facilities_v1.dtd">
`

// WriteFile writes facilities to path, gzip compressed when path ends in .gz
func WriteFile(path, name string, facilities []Facility) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create facilities file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := Write(w, name, facilities); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return f.Close()
}

// Write encodes facilities in the facilities_v1 XML format
func Write(w io.Writer, name string, facilities []Facility) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(facilitiesHeader)
	bw.WriteString("<facilities")
	if name != "" {
		bw.WriteString(` name="`)
		xml.EscapeText(bw, []byte(name))
		bw.WriteString(`"`)
	}
	bw.WriteString(">\n")

	for _, fac := range facilities {
		bw.WriteString(`	<facility id="`)
		xml.EscapeText(bw, []byte(fac.ID))
		bw.WriteString(`" x="`)
		bw.WriteString(strconv.FormatFloat(fac.Coord[0], 'f', -1, 64))
		bw.WriteString(`" y="`)
		bw.WriteString(strconv.FormatFloat(fac.Coord[1], 'f', -1, 64))
		bw.WriteString(`" linkId="`)
		xml.EscapeText(bw, []byte(fac.LinkID))
		bw.WriteString("\">\n")
		for _, act := range fac.Activities {
			bw.WriteString(`		<activity type="`)
			xml.EscapeText(bw, []byte(act))
			bw.WriteString("\"/>\n")
		}
		bw.WriteString("\t</facility>\n")
	}

	bw.WriteString("</facilities>\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write facilities: %w", err)
	}
	return nil
}
