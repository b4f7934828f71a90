package primetrust

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
)

// MaxImageWidth is the width KYC photos are scaled down to before upload.
const MaxImageWidth = 1200

// UploadDocument sends one file to /v2/uploaded-documents and returns its id.
func (c *Client) UploadDocument(ctx context.Context, up UploadRequest) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"contact-id", up.ContactID}}
	if up.Description != "" {
		fields = append(fields, [2]string{"description", up.Description})
	}
	if up.Label != "" {
		fields = append(fields, [2]string{"label", up.Label})
	}
	if up.Public {
		fields = append(fields, [2]string{"public", strconv.FormatBool(up.Public)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	part, err := w.CreateFormFile("file", up.FileName)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(up.Content); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var doc document
	if err := c.send(ctx, http.MethodPost, "/v2/uploaded-documents", w.FormDataContentType(), &buf, &doc, nil); err != nil {
		return "", err
	}
	r, err := doc.one()
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// ShrinkImage scales an image wider than MaxImageWidth down to that width, keeping its
// aspect ratio and encoding it in the format implied by fileName. Content that is not a
// decodable image, such as a PDF, is returned unchanged.
func ShrinkImage(content []byte, fileName string) []byte {
	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return content
	}
	if img.Bounds().Dx() <= MaxImageWidth {
		return content
	}
	format, err := imaging.FormatFromFilename(fileName)
	if err != nil {
		format = imaging.JPEG
	}
	resized := imaging.Resize(img, MaxImageWidth, 0, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, resized, format); err != nil {
		return content
	}
	return out.Bytes()
}
