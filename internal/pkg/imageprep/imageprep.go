// Package imageprep normalizes uploaded photos before they are sent to a vision model.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"

	jpegQuality = 85
)

var (
	// ErrUnsupportedFormat is returned for uploads that are not JPEG, PNG or WebP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidImage      = errors.New("invalid image")
)

// IsBadInput reports whether err was caused by the uploaded bytes themselves.
func IsBadInput(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrInvalidImage)
}

// Info describes an upload after EXIF orientation has been applied.
type Info struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// MIME returns the content type for the detected format.
func (i Info) MIME() string {
	return "image/" + i.Format
}

// DetectFormat sniffs the leading bytes of data.
func DetectFormat(data []byte) (string, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	switch {
	case strings.Contains(ct, "jpeg"):
		return FormatJPEG, nil
	case strings.Contains(ct, "png"):
		return FormatPNG, nil
	case strings.Contains(ct, "webp"):
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
}

func decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	format, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}

	var img image.Image
	if format == FormatWebP {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s image: %v", ErrInvalidImage, format, err)
	}
	return img, format, nil
}

// Probe returns oriented dimensions and the format of data.
func Probe(data []byte) (Info, error) {
	img, format, err := decode(data)
	if err != nil {
		return Info{}, err
	}
	b := img.Bounds()
	return Info{Width: b.Dx(), Height: b.Dy(), Format: format}, nil
}

// Prepared is an image ready for an analyzer call.
type Prepared struct {
	Data []byte
	MIME string
	Info Info
}

// PrepareForAnalysis fits the image inside maxEdge pixels and re-encodes it as
// JPEG. JPEG and PNG inputs that already fit are returned unchanged. WebP is
// always converted since not every provider accepts it.
func PrepareForAnalysis(data []byte, maxEdge int) (*Prepared, error) {
	img, format, err := decode(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	info := Info{Width: b.Dx(), Height: b.Dy(), Format: format}

	fits := maxEdge <= 0 || (info.Width <= maxEdge && info.Height <= maxEdge)
	if fits && format != FormatWebP && !needsReorientation(data, format, info) {
		return &Prepared{Data: data, MIME: info.MIME(), Info: info}, nil
	}

	if !fits {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	nb := img.Bounds()
	return &Prepared{
		Data: buf.Bytes(),
		MIME: "image/jpeg",
		Info: Info{Width: nb.Dx(), Height: nb.Dy(), Format: FormatJPEG},
	}, nil
}

// needsReorientation reports whether EXIF rotation changed the raw geometry,
// in which case the original bytes would reach the model sideways.
func needsReorientation(data []byte, format string, oriented Info) bool {
	if format != FormatJPEG {
		return false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width != oriented.Width || cfg.Height != oriented.Height
}
