package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies what an Item holds.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalJSON writes the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts either the kind name or its numeric value.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch strings.ToLower(name) {
		case "text":
			*k = KindText
		case "image":
			*k = KindImage
		default:
			return fmt.Errorf("unknown item kind: %q", name)
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid item kind: %s", data)
	}
	if n != int(KindText) && n != int(KindImage) {
		return fmt.Errorf("unknown item kind: %d", n)
	}
	*k = Kind(n)
	return nil
}

// ImageRef points at a PNG blob on disk.
type ImageRef struct {
	Path   string
	Width  int
	Height int
}

// Item is one captured clipboard entry. Text is set only for KindText and
// Image only for KindImage.
type Item struct {
	Kind        Kind
	ContentHash string
	Text        string
	Image       *ImageRef
	CapturedAt  time.Time
}

// NewTextItem builds a text item. The caller is responsible for rejecting
// blank text.
func NewTextItem(text string, at time.Time) Item {
	text = normalizeText(text)
	return Item{
		Kind:        KindText,
		ContentHash: HashText(text),
		Text:        text,
		CapturedAt:  at.UTC(),
	}
}

// NewImageItem builds an image item for a blob that has already been written.
func NewImageItem(hash string, ref ImageRef, at time.Time) Item {
	return Item{
		Kind:        KindImage,
		ContentHash: hash,
		Image:       &ref,
		CapturedAt:  at.UTC(),
	}
}

// Preview returns a single-line description suitable for a list row.
func (it Item) Preview() string {
	switch it.Kind {
	case KindImage:
		if it.Image != nil && it.Image.Width > 0 && it.Image.Height > 0 {
			return fmt.Sprintf("Image %dx%d", it.Image.Width, it.Image.Height)
		}
		return "Image"
	default:
		return strings.TrimSpace(strings.ReplaceAll(it.Text, "\r", ""))
	}
}

// record is the on-disk shape of an Item.
type record struct {
	Kind             Kind      `json:"kind"`
	ContentHash      string    `json:"contentHash"`
	Text             string    `json:"text,omitempty"`
	ImagePath        string    `json:"imagePath,omitempty"`
	ImagePixelWidth  int       `json:"imagePixelWidth,omitempty"`
	ImagePixelHeight int       `json:"imagePixelHeight,omitempty"`
	CapturedAtUtc    time.Time `json:"capturedAtUtc"`
}

func toRecord(it Item) record {
	r := record{
		Kind:          it.Kind,
		ContentHash:   it.ContentHash,
		CapturedAtUtc: it.CapturedAt.UTC(),
	}
	switch it.Kind {
	case KindImage:
		if it.Image != nil {
			r.ImagePath = it.Image.Path
			r.ImagePixelWidth = it.Image.Width
			r.ImagePixelHeight = it.Image.Height
		}
	default:
		r.Text = it.Text
	}
	return r
}
