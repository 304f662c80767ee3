package resource

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Place is a named sky location from a catalog.
type Place struct {
	Name          string  `json:"name"`
	DataSetType   string  `json:"dataset_type"`
	RA            float64 `json:"ra"`
	Dec           float64 `json:"dec"`
	ZoomLevel     float64 `json:"zoom_level"`
	Constellation string  `json:"constellation,omitempty"`
}

// ImageSet describes imagery the engine could draw.
type ImageSet struct {
	Name         string `json:"name"`
	DataSetType  string `json:"dataset_type"`
	BandPass     string `json:"band_pass,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type wtmlFolder struct {
	Name      string         `xml:"Name,attr"`
	Folders   []wtmlFolder   `xml:"Folder"`
	Places    []wtmlPlace    `xml:"Place"`
	ImageSets []wtmlImageSet `xml:"ImageSet"`
}

type wtmlPlace struct {
	Name          string `xml:"Name,attr"`
	DataSetType   string `xml:"DataSetType,attr"`
	RA            string `xml:"RA,attr"`
	Dec           string `xml:"Dec,attr"`
	ZoomLevel     string `xml:"ZoomLevel,attr"`
	Constellation string `xml:"Constellation,attr"`
}

type wtmlImageSet struct {
	Name         string `xml:"Name,attr"`
	DataSetType  string `xml:"DataSetType,attr"`
	BandPass     string `xml:"BandPass,attr"`
	URL          string `xml:"Url,attr"`
	ThumbnailURL string `xml:"ThumbnailUrl"`
}

// ParseWTML reads a WTML document (a tree of Folder elements) and flattens
// its places and image sets in document order. Places with unparseable
// coordinates are skipped and counted in the returned skipped value.
func ParseWTML(data []byte) (*Catalog, int, error) {
	var root wtmlFolder
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Some catalogs declare utf-16 or windows-1252 but contain plain ASCII.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&root); err != nil {
		return nil, 0, fmt.Errorf("decoding WTML: %w", err)
	}

	cat := &Catalog{Name: root.Name}
	skipped := 0
	var walk func(f *wtmlFolder)
	walk = func(f *wtmlFolder) {
		for _, p := range f.Places {
			place, ok := convertPlace(p)
			if !ok {
				skipped++
				continue
			}
			cat.Places = append(cat.Places, place)
		}
		for _, is := range f.ImageSets {
			cat.ImageSets = append(cat.ImageSets, ImageSet{
				Name:         is.Name,
				DataSetType:  is.DataSetType,
				BandPass:     is.BandPass,
				URL:          is.URL,
				ThumbnailURL: strings.TrimSpace(is.ThumbnailURL),
			})
		}
		for i := range f.Folders {
			walk(&f.Folders[i])
		}
	}
	walk(&root)

	return cat, skipped, nil
}

func convertPlace(p wtmlPlace) (Place, bool) {
	ra, err := strconv.ParseFloat(strings.TrimSpace(p.RA), 64)
	if err != nil {
		return Place{}, false
	}
	dec, err := strconv.ParseFloat(strings.TrimSpace(p.Dec), 64)
	if err != nil || dec < -90 || dec > 90 {
		return Place{}, false
	}
	zoom := 0.0
	if z := strings.TrimSpace(p.ZoomLevel); z != "" {
		if zoom, err = strconv.ParseFloat(z, 64); err != nil {
			zoom = 0
		}
	}
	return Place{
		Name:          p.Name,
		DataSetType:   p.DataSetType,
		RA:            ra,
		Dec:           dec,
		ZoomLevel:     zoom,
		Constellation: p.Constellation,
	}, true
}
