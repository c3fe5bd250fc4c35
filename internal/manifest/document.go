package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"rollscan/internal/rolls"
	"rollscan/internal/services"
)

// Document models the subset of an IIIF manifest the pipeline reads. Both
// Presentation API v2 (sequences, @id, string labels) and v3 (items, id,
// language maps) shapes are accepted.
type Document struct {
	Label    Label           `json:"label"`
	Metadata []MetadataEntry `json:"metadata"`

	Sequences []Sequence `json:"sequences"`
	Items     []Sequence `json:"items"`
}

// MetadataEntry is one label/value pair from the manifest metadata block.
type MetadataEntry struct {
	Label Label  `json:"label"`
	Value Values `json:"value"`
}

// Sequence covers the rendering containers observed across manifest
// generations: a renderings list, a rendering list, or per-canvas renderings.
type Sequence struct {
	Renderings []Rendering `json:"renderings"`
	Rendering  []Rendering `json:"rendering"`
	Canvases   []Canvas    `json:"canvases"`
}

// Canvas holds the renderings attached to a single canvas.
type Canvas struct {
	Rendering []Rendering `json:"rendering"`
}

// Rendering is a downloadable representation of the scan.
type Rendering struct {
	LegacyID string `json:"@id"`
	ID       string `json:"id"`
	Format   string `json:"format"`
}

// URL returns the rendering's download URL, whichever identifier field
// carries it.
func (r Rendering) URL() string {
	if r.LegacyID != "" {
		return r.LegacyID
	}
	return r.ID
}

// Label decodes either a plain string or a v3 language map.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Label(s)
		return nil
	}
	var languageMap map[string][]string
	if err := json.Unmarshal(data, &languageMap); err != nil {
		return fmt.Errorf("label is neither string nor language map: %w", err)
	}
	for _, values := range languageMap {
		if len(values) > 0 {
			*l = Label(values[0])
			return nil
		}
	}
	*l = ""
	return nil
}

// Values decodes a metadata value that may be a single string or a list.
type Values []string

func (v *Values) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Values{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("metadata value is neither string nor list: %w", err)
	}
	*v = Values(list)
	return nil
}

// Title returns the manifest label with catalog suffixes trimmed.
func (d *Document) Title() string {
	return strings.TrimSpace(string(d.Label))
}

// ImageURL finds the download URL for the preferred scan image listed in the
// manifest. Infrared and green-channel JP2s are preferred, then
// green-channel TIFFs; a sequence with a single rendering (probably the
// original RGB) is returned as-is.
func (d *Document) ImageURL() (string, error) {
	sequences := d.Sequences
	if len(sequences) == 0 {
		sequences = d.Items
	}
	if len(sequences) == 0 {
		return "", services.Wrap(services.ErrValidation, "manifest", "image-url",
			"manifest has no sequences", nil)
	}

	for _, seq := range sequences {
		renderings := seq.Renderings
		if len(renderings) == 0 {
			renderings = seq.Rendering
		}
		if len(renderings) == 0 {
			for _, canvas := range seq.Canvases {
				if len(canvas.Rendering) > 0 {
					renderings = append(renderings, canvas.Rendering[0])
				}
			}
		}
		if len(renderings) == 0 {
			continue
		}

		if len(renderings) == 1 && renderings[0].URL() != "" {
			return renderings[0].URL(), nil
		}

		for _, rendering := range renderings {
			u := rendering.URL()
			if (strings.HasSuffix(u, "_ir_sp.jp2") || strings.HasSuffix(u, "_gs.jp2")) &&
				rendering.Format == "image/jp2" {
				return u, nil
			}
			if (strings.HasSuffix(u, "_gr.tiff") || strings.HasSuffix(u, "_gr.tif")) &&
				(rendering.Format == "image/tiff" || rendering.Format == "image/x-tiff-big") {
				return u, nil
			}
		}
	}

	return "", services.Wrap(services.ErrValidation, "manifest", "image-url",
		"no scan image rendering in manifest", nil)
}

// RollType determines the roll type from the manifest metadata block. A
// dedicated "Roll type" entry wins; a "Scale" entry may refine a "standard"
// or missing type; any remaining note may fill in, except that a generic
// 88-note marking never overrides a more specific type.
func (d *Document) RollType() (rolls.Type, error) {
	var (
		rollType  rolls.Type
		typeValue string
	)

	lookup := func(label string) string {
		for _, entry := range d.Metadata {
			if strings.EqualFold(strings.TrimSpace(string(entry.Label)), label) {
				for _, value := range entry.Value {
					if strings.TrimSpace(value) != "" {
						return strings.TrimSpace(value)
					}
				}
			}
		}
		return ""
	}

	typeValue = lookup("Roll type")
	if t, ok := rolls.TypeForLabel(typeValue); ok {
		rollType = t
	}

	if scale := lookup("Scale"); scale != "" {
		if t, ok := rolls.TypeForLabel(scale); ok && (rollType == "" || typeValue == "standard") {
			rollType = t
		}
	}

	if rollType == "" || typeValue == "standard" {
		for _, entry := range d.Metadata {
			for _, value := range entry.Value {
				t, ok := rolls.TypeForLabel(value)
				if !ok {
					continue
				}
				if rolls.GenericLabel(value) && rollType != "" {
					continue
				}
				rollType = t
			}
		}
	}

	if rollType == "" {
		return "", services.Wrap(services.ErrUnsupportedRollType, "manifest", "roll-type",
			"no recognized roll type in manifest metadata", nil)
	}
	return rollType, nil
}
