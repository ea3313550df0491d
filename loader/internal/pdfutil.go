package internal

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Inspect validates a PDF and returns its page count.
func Inspect(path string) (int, error) {
	conf := api.LoadConfiguration()
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, fmt.Errorf("invalid PDF %s: %w", path, err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	return pages, nil
}

// RemoveHeaderFooterCrop crops top and bottom margins off every page.
// top and bottom are in points (1 pt = 1/72 inch).
func RemoveHeaderFooterCrop(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()

	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, []string{"1-"}, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}
	return nil
}

// croppedCopy writes a cropped copy of path to a temp file. The caller
// removes the returned file.
func croppedCopy(path string, top, bottom float64) (string, error) {
	tmp, err := os.CreateTemp("", "docchat-*.pdf")
	if err != nil {
		return "", err
	}
	tmp.Close()

	if err := RemoveHeaderFooterCrop(path, tmp.Name(), top, bottom); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
