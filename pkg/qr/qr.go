// Package qr renders QR codes for tracking URLs.
package qr

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// DownloadSize is the edge length in pixels of downloadable PNGs.
	DownloadSize = 1000
	// PreviewSize is used for inline dashboard previews.
	PreviewSize = 256
)

// TrackURL builds the URL a code's QR image points at.
func TrackURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/track?id=" + url.QueryEscape(code)
}

// PNG encodes content as a size x size PNG with medium error recovery.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("empty QR content")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR png: %w", err)
	}
	return png, nil
}

// SVG draws content as one <rect> per dark module, each cell pixels wide.
// The bitmap includes the standard quiet zone.
func SVG(content string, cell int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("empty QR content")
	}
	if cell <= 0 {
		cell = 10
	}
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR svg: %w", err)
	}
	bitmap := code.Bitmap()
	edge := len(bitmap) * cell

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, edge, edge, edge, edge)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, edge, edge)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`, x*cell, y*cell, cell, cell)
			}
		}
	}
	b.WriteString("</svg>\n")
	return []byte(b.String()), nil
}
