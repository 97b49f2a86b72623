// Package media проверяет загружаемые изображения товаров и приводит их к единому размеру.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

const (
	// BoxSize задаёт сторону квадрата, в который вписывается изображение.
	BoxSize = 300

	// MaxPixels ограничивает число пикселей исходного изображения, которое декодируется целиком.
	MaxPixels = 40_000_000

	jpegQuality = 90
)

var (
	// ErrUnsupportedImage возвращается для файлов, которые не являются JPEG или PNG.
	ErrUnsupportedImage = errors.New("only JPEG and PNG images are allowed")
	// ErrTypeMismatch возвращается, если заявленный тип или расширение не совпадает с содержимым.
	ErrTypeMismatch = errors.New("declared image type does not match its content")
)

// Image содержит нормализованное изображение, готовое к сохранению.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

func typeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return ""
}

// Normalize проверяет тип изображения по содержимому, заявленному типу и расширению,
// затем вписывает его в квадрат BoxSize×BoxSize на белом фоне.
func Normalize(data []byte, declaredContentType, filename string) (*Image, error) {
	sniffed := mimetype.Detect(data)
	contentType := ""
	for t := range extByType {
		if sniffed.Is(t) {
			contentType = t
		}
	}
	if contentType == "" {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedImage, sniffed.String())
	}

	if declaredContentType != "" {
		declared, _, err := mime.ParseMediaType(declaredContentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		if declared == "image/jpg" {
			declared = "image/jpeg"
		}
		if declared != contentType {
			return nil, fmt.Errorf("%w: declared %s, content %s", ErrTypeMismatch, declared, contentType)
		}
	}

	if filename != "" {
		byExt := typeByExt(filepath.Ext(filename))
		if byExt == "" {
			return nil, fmt.Errorf("%w: extension of %q", ErrUnsupportedImage, filename)
		}
		if byExt != contentType {
			return nil, fmt.Errorf("%w: extension of %q, content %s", ErrTypeMismatch, filename, contentType)
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnsupportedImage, err)
	}

	out, err := encode(fit(src, BoxSize), contentType)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return &Image{
		Data:        out,
		ContentType: contentType,
		Ext:         extByType[contentType],
	}, nil
}

// fit масштабирует src с сохранением пропорций и центрирует его на белом холсте size×size.
func fit(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}

	tw, th := size, size
	if w >= h {
		th = max(1, h*size/w)
	} else {
		tw = max(1, w*size/h)
	}

	x0 := (size - tw) / 2
	y0 := (size - th) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+tw, y0+th), src, b, draw.Over, nil)

	return dst
}

func encode(img image.Image, contentType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch contentType {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
